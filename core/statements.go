package core

// 召回与物化使用的固定形态查询。
// Cypher 中的标签/属性名与 graph.go 中的常量保持一致。

// StmtSameAttribute 查找与给定物品类别串完全相等的其他物品。
// 参数：key, attribute。返回列：key。
var StmtSameAttribute = Statement{
	Name: "same_attribute",
	Cypher: `
MATCH (m2:Movie)
WHERE m2.genres = $attribute AND m2.id <> $key
RETURN m2.id AS key
`,
}

// StmtSimilarItems 查找经一条 SIMILAR 边可达的物品。
// 参数：key, limit。返回列：key, title, attribute。
var StmtSimilarItems = Statement{
	Name: "similar_items",
	Cypher: `
MATCH (:Movie {id: $key})-[:SIMILAR]-(m2:Movie)
WITH DISTINCT m2
RETURN m2.id AS key, m2.title AS title, m2.genres AS attribute
ORDER BY coalesce(m2.title, ''), m2.id
LIMIT $limit
`,
}

// StmtCoRaters 按共同评分物品数排序，查找与给定用户行为最相似的其他用户。
// 参数：user, limit。返回列：key, shared。
var StmtCoRaters = Statement{
	Name: "co_raters",
	Cypher: `
MATCH (u1:User {id: $user})-[:RATED]->(m:Movie)<-[:RATED]-(u2:User)
WHERE u2.id <> u1.id
WITH u2, count(DISTINCT m) AS shared
RETURN u2.id AS key, shared
ORDER BY shared DESC, key ASC
LIMIT $limit
`,
}

// StmtPeerItems 查找 peers 评过分、而给定用户未评过分的物品。
// 参数：user, peers, limit。返回列：key, title, support。
var StmtPeerItems = Statement{
	Name: "peer_items",
	Cypher: `
MATCH (u2:User)-[:RATED]->(rec:Movie)
WHERE u2.id IN $peers
  AND NOT EXISTS { MATCH (:User {id: $user})-[:RATED]->(rec) }
WITH rec, count(DISTINCT u2) AS support
RETURN rec.id AS key, rec.title AS title, support
ORDER BY support DESC, coalesce(rec.title, ''), rec.id
LIMIT $limit
`,
}
