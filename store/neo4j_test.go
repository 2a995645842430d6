package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/graphrec/core"
)

func TestValidateIdent(t *testing.T) {
	for _, ok := range []string{"Movie", "User", "SIMILAR", "_x1"} {
		assert.NoError(t, validateIdent(ok), ok)
	}
	for _, bad := range []string{"", "1Movie", "Movie) DETACH DELETE (n", "Mo-vie", "Movie:User"} {
		err := validateIdent(bad)
		require.Error(t, err, bad)
		assert.True(t, core.IsInvalidInput(err), bad)
	}
}

func TestClassifyNeo4jError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
		failed      bool
	}{
		{name: "auth", err: &neo4j.Neo4jError{Code: "Neo.ClientError.Security.Unauthorized", Msg: "bad credentials"}, unavailable: true},
		{name: "transient", err: &neo4j.Neo4jError{Code: "Neo.TransientError.General.DatabaseUnavailable", Msg: "down"}, unavailable: true},
		{name: "constraint", err: &neo4j.Neo4jError{Code: "Neo.ClientError.Schema.ConstraintValidationFailed", Msg: "dup"}, failed: true},
		{name: "syntax", err: &neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError", Msg: "oops"}, failed: true},
		{name: "deadline", err: fmt.Errorf("run: %w", context.DeadlineExceeded), unavailable: true},
		{name: "breaker open", err: gobreaker.ErrOpenState, unavailable: true},
		{name: "plain", err: errors.New("unexpected"), failed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyNeo4jError("op", tt.err)
			assert.Equal(t, tt.unavailable, core.IsUnavailable(got))
			assert.Equal(t, tt.failed, core.IsOperationFailed(got))
			assert.True(t, errors.Is(got, tt.err), "cause must stay reachable")
		})
	}
}

func TestClassifyNeo4jError_PassThrough(t *testing.T) {
	assert.NoError(t, classifyNeo4jError("op", nil))

	canceled := fmt.Errorf("wrapped: %w", context.Canceled)
	assert.Same(t, canceled, classifyNeo4jError("op", canceled))

	domain := core.NewGraphOperationFailed("upsert edge", errors.New("endpoint missing"))
	assert.Same(t, domain, classifyNeo4jError("op", domain))
}

func TestBreakerCountsOnlyUnavailability(t *testing.T) {
	assert.True(t, breakerSuccessful(nil))
	assert.True(t, breakerSuccessful(core.NewGraphOperationFailed("op", errors.New("x"))))
	assert.True(t, breakerSuccessful(context.Canceled))
	assert.False(t, breakerSuccessful(core.NewGraphUnavailable("op", errors.New("x"))))
}

func TestNeo4jConfigDefaults(t *testing.T) {
	cfg := Neo4jConfig{URI: "bolt://localhost:7687"}.withDefaults()
	assert.Equal(t, "neo4j", cfg.Username)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 50, cfg.MaxPoolSize)
	assert.Equal(t, uint32(5), cfg.BreakerFailures)
}

func TestNewNeo4jGraphRequiresURI(t *testing.T) {
	_, err := NewNeo4jGraph(context.Background(), Neo4jConfig{}, nil)
	require.Error(t, err)
	assert.True(t, core.IsInvalidInput(err))
}
