// Package ingest 把 MovieLens 风格的 CSV 数据集读成有类型的记录并写入图存储。
//
// 读取只取前 sampleSize 行数据行；标识符统一规整为标准字符串形式（"652.0" -> "652"）。
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rushteam/graphrec/core"
	"github.com/rushteam/graphrec/pkg/conv"
)

// Movie 是一条物品记录。Genres 为空表示没有类别，不参与相似边。
type Movie struct {
	ID     string
	Title  string
	Genres string
}

// Rating 是一条用户评分记录。
type Rating struct {
	UserID  string
	MovieID string
	Rating  float64
}

// ReadMovies 读取物品 CSV（列：id, title, genres），按表头定位列。
// 主键为空的行被跳过；sampleSize <= 0 表示读取全部。
func ReadMovies(r io.Reader, sampleSize int) ([]Movie, error) {
	out := make([]Movie, 0)
	err := readCSV(r, sampleSize, []string{"id", "title", "genres"}, func(line int, get func(string) string) error {
		id := conv.CanonicalID(get("id"))
		if id == "" {
			return nil
		}
		out = append(out, Movie{
			ID:     id,
			Title:  strings.TrimSpace(get("title")),
			Genres: strings.TrimSpace(get("genres")),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadRatings 读取评分 CSV（列：userId, movieId, rating），按表头定位列。
// 任一主键为空的行被跳过；评分无法解析时返回 INVALID_INPUT。
func ReadRatings(r io.Reader, sampleSize int) ([]Rating, error) {
	out := make([]Rating, 0)
	err := readCSV(r, sampleSize, []string{"userId", "movieId", "rating"}, func(line int, get func(string) string) error {
		user := conv.CanonicalID(get("userId"))
		movie := conv.CanonicalID(get("movieId"))
		if user == "" || movie == "" {
			return nil
		}
		score, ok := conv.ToFloat64(get("rating"))
		if !ok {
			return invalidInput(fmt.Errorf("line %d: rating %q is not a number", line, get("rating")))
		}
		out = append(out, Rating{UserID: user, MovieID: movie, Rating: score})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func readCSV(r io.Reader, sampleSize int, required []string, row func(line int, get func(string) string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return invalidInput(errors.New("missing header"))
	}
	if err != nil {
		return invalidInput(err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return invalidInput(fmt.Errorf("missing column %q", col))
		}
	}

	for n := 0; sampleSize <= 0 || n < sampleSize; n++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return invalidInput(err)
		}
		get := func(col string) string {
			i := index[col]
			if i >= len(rec) {
				return ""
			}
			return rec[i]
		}
		line, _ := cr.FieldPos(0)
		if err := row(line, get); err != nil {
			return err
		}
	}
	return nil
}

func invalidInput(err error) error {
	return core.WrapDomainError(core.ModuleIngest, core.ErrorCodeInvalidInput, "ingest: malformed csv", err)
}
