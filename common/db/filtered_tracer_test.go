package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

type countingTracer struct {
	starts, ends int
}

func (c *countingTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryStartData) context.Context {
	c.starts++
	return ctx
}

func (c *countingTracer) TraceQueryEnd(_ context.Context, _ *pgx.Conn, _ pgx.TraceQueryEndData) {
	c.ends++
}

func TestFilteredTracer(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		traced bool
	}{
		{"log insert skipped", "INSERT INTO crawler_logs (id) VALUES ($1)", false},
		{"case insensitive", "insert into CRAWLER_LOGS (id) values ($1)", false},
		{"run update traced", "UPDATE crawl_runs SET status = $2 WHERE id = $1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &countingTracer{}
			tracer := &FilteredTracer{inner: inner, skipTable: untracedTable}

			ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: tt.sql})
			tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})

			want := 0
			if tt.traced {
				want = 1
			}
			assert.Equal(t, want, inner.starts)
			assert.Equal(t, want, inner.ends)
		})
	}
}
