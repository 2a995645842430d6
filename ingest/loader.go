package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rushteam/graphrec/core"
	"github.com/rushteam/graphrec/pkg/logger"
)

const DefaultBatchSize = 500

// Summary 是一次导入的统计。
type Summary struct {
	Movies   int
	Ratings  int
	Duration time.Duration
}

// Loader 把记录写入图存储。存储支持 Batcher 时每 BatchSize 条记录一个事务。
type Loader struct {
	Graph     core.GraphStore
	BatchSize int
	Logger    *logger.Logger
}

// LoadMovies 对每部电影 MERGE 节点并覆盖 title / genres。空字段不写入。
func (l *Loader) LoadMovies(ctx context.Context, movies []Movie) error {
	return l.inBatches(ctx, len(movies), func(w core.GraphWriter, i int) error {
		m := movies[i]
		props := make(map[string]any, 2)
		if m.Title != "" {
			props[core.PropTitle] = m.Title
		}
		if m.Genres != "" {
			props[core.PropAttribute] = m.Genres
		}
		_, err := w.UpsertNode(ctx, core.LabelItem, m.ID, props)
		return err
	})
}

// LoadRatings 对每条评分 MERGE 用户与电影节点，再 MERGE 评分边并覆盖评分。
func (l *Loader) LoadRatings(ctx context.Context, ratings []Rating) error {
	return l.inBatches(ctx, len(ratings), func(w core.GraphWriter, i int) error {
		r := ratings[i]
		user, err := w.UpsertNode(ctx, core.LabelActor, r.UserID, nil)
		if err != nil {
			return err
		}
		movie, err := w.UpsertNode(ctx, core.LabelItem, r.MovieID, nil)
		if err != nil {
			return err
		}
		return w.UpsertEdge(ctx, core.Edge{
			Type:  core.RelRated,
			From:  user,
			To:    movie,
			Props: map[string]any{core.PropRating: r.Rating},
		})
	})
}

// LoadCSV 读取两份 CSV 并依次导入电影与评分。
func (l *Loader) LoadCSV(ctx context.Context, movies, ratings io.Reader, sampleSize int) (Summary, error) {
	start := time.Now()
	log := logger.OrNop(l.Logger)

	ms, err := ReadMovies(movies, sampleSize)
	if err != nil {
		return Summary{}, fmt.Errorf("read movies: %w", err)
	}
	rs, err := ReadRatings(ratings, sampleSize)
	if err != nil {
		return Summary{}, fmt.Errorf("read ratings: %w", err)
	}
	if err := l.LoadMovies(ctx, ms); err != nil {
		return Summary{}, fmt.Errorf("load movies: %w", err)
	}
	if err := l.LoadRatings(ctx, rs); err != nil {
		return Summary{}, fmt.Errorf("load ratings: %w", err)
	}

	sum := Summary{Movies: len(ms), Ratings: len(rs), Duration: time.Since(start)}
	log.Info("dataset loaded", "movies", sum.Movies, "ratings", sum.Ratings, "duration", sum.Duration)
	return sum, nil
}

func (l *Loader) inBatches(ctx context.Context, n int, write func(w core.GraphWriter, i int) error) error {
	if l.Graph == nil {
		return core.NewDomainError(core.ModuleIngest, core.ErrorCodeInvalidInput, "ingest: graph store is required")
	}
	size := l.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	batcher, _ := l.Graph.(core.Batcher)

	for start := 0; start < n; start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+size, n)
		chunk := func(w core.GraphWriter) error {
			for i := start; i < end; i++ {
				if err := write(w, i); err != nil {
					return err
				}
			}
			return nil
		}
		var err error
		if batcher != nil {
			err = batcher.Batch(ctx, chunk)
		} else {
			err = chunk(l.Graph)
		}
		if err != nil {
			return fmt.Errorf("records %d-%d: %w", start, end-1, err)
		}
		logger.OrNop(l.Logger).Debug("ingest batch written", "from", start, "to", end)
	}
	return nil
}
