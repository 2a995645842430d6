package store

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/rushteam/graphrec/core"
)

// neo4jRowIter 逐条读取结果，持有 session 与只读事务直到 Close。
type neo4jRowIter struct {
	g       *Neo4jGraph
	op      string
	session neo4j.SessionWithContext
	tx      neo4j.ExplicitTransaction
	res     neo4j.ResultWithContext

	cur    core.Row
	err    error
	closed bool
}

func (it *neo4jRowIter) Next(ctx context.Context) bool {
	if it.closed || it.err != nil {
		return false
	}
	if it.res.Next(ctx) {
		rec := it.res.Record()
		row := make(core.Row, len(rec.Keys))
		for i, k := range rec.Keys {
			row[k] = rec.Values[i]
		}
		it.cur = row
		return true
	}
	if err := it.res.Err(); err != nil {
		it.err = it.g.classify(it.op, err)
	}
	return false
}

func (it *neo4jRowIter) Row() core.Row { return it.cur }
func (it *neo4jRowIter) Err() error    { return it.err }

// Close 结束事务并关闭 session，可重复调用。
func (it *neo4jRowIter) Close(ctx context.Context) error {
	if it.closed {
		return nil
	}
	it.closed = true
	txErr := it.tx.Close(ctx)
	sessErr := it.session.Close(ctx)
	if txErr != nil {
		return it.g.classify(it.op, txErr)
	}
	return it.g.classify(it.op, sessErr)
}
