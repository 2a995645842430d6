// Package store 提供 core 包中端口的实现。
//
// 图存储（core.GraphStore）：
//   - MemoryGraph：内存属性图，测试与小数据集使用
//   - Neo4jGraph：Neo4j 驱动实现，带熔断与超时
//
// KV 存储（core.Store，用作推荐缓存）：
//   - MemoryStore
//   - RedisStore
//
// 接口定义在 core 包，本包只包含实现：
//
//	var g core.GraphStore = store.NewMemoryGraph()
//	var kv core.Store = store.NewMemoryStore()
package store
