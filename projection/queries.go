package projection

import (
	"context"
	"fmt"

	"github.com/io-da/query"
)

// MetricSummaryQuery asks for the summary of one metric name.
type MetricSummaryQuery struct {
	Name string
}

func (q MetricSummaryQuery) ID() []byte { return []byte("metric-summary:" + q.Name) }

// ListMetricsQuery asks for every metric summary.
type ListMetricsQuery struct{}

func (q ListMetricsQuery) ID() []byte { return []byte("metrics:all") }

// AlertViewQuery asks for the view of one alert stream.
type AlertViewQuery struct {
	StreamID string
}

func (q AlertViewQuery) ID() []byte { return []byte("alert-view:" + q.StreamID) }

// ListAlertsQuery asks for every alert view.
type ListAlertsQuery struct{}

func (q ListAlertsQuery) ID() []byte { return []byte("alerts:all") }

// QueryFunc resolves one query against the read models.
type QueryFunc func(ctx context.Context, qry query.Query) (any, error)

// QueryProvider answers single-result queries over the projector's read
// models. It dispatches on the concrete query type.
type QueryProvider struct {
	handlers map[string]QueryFunc
}

var _ query.Handler = (*QueryProvider)(nil)

// NewQueryProvider wires the projector's lookups into a query handler.
func NewQueryProvider(p *Projector) *QueryProvider {
	qp := &QueryProvider{handlers: make(map[string]QueryFunc)}

	qp.register(MetricSummaryQuery{}, func(ctx context.Context, qry query.Query) (any, error) {
		q := qry.(MetricSummaryQuery)
		summary, ok := p.Summary(q.Name)
		if !ok {
			return nil, fmt.Errorf("no summary for metric %q", q.Name)
		}
		return summary, nil
	})

	qp.register(AlertViewQuery{}, func(ctx context.Context, qry query.Query) (any, error) {
		q := qry.(AlertViewQuery)
		view, ok := p.Alert(q.StreamID)
		if !ok {
			return nil, fmt.Errorf("no view for alert %q", q.StreamID)
		}
		return view, nil
	})

	return qp
}

func (t *QueryProvider) register(qry query.Query, fn QueryFunc) {
	queryType := typeName(qry)
	if _, ok := t.handlers[queryType]; ok {
		panic("duplicate query handler " + queryType)
	}
	t.handlers[queryType] = fn
}

func (t *QueryProvider) Handle(ctx context.Context, qry query.Query, res *query.Result) error {
	fn, exists := t.handlers[typeName(qry)]
	if !exists {
		return fmt.Errorf("unknown query type: %s", typeName(qry))
	}

	result, err := fn(ctx, qry)
	if err != nil {
		return err
	}

	res.Add(result)
	res.Done()

	return nil
}

// ListFunc resolves one query to a result set.
type ListFunc func(ctx context.Context, qry query.Query) ([]any, error)

// ListProvider answers multi-result queries, yielding each read model on the
// iterator result.
type ListProvider struct {
	handlers map[string]ListFunc
}

var _ query.IteratorHandler = (*ListProvider)(nil)

// NewListProvider wires the projector's listings into an iterator handler.
func NewListProvider(p *Projector) *ListProvider {
	lp := &ListProvider{handlers: make(map[string]ListFunc)}

	lp.register(ListMetricsQuery{}, func(ctx context.Context, qry query.Query) ([]any, error) {
		summaries := p.Summaries()
		out := make([]any, len(summaries))
		for i, s := range summaries {
			out[i] = s
		}
		return out, nil
	})

	lp.register(ListAlertsQuery{}, func(ctx context.Context, qry query.Query) ([]any, error) {
		views := p.Alerts()
		out := make([]any, len(views))
		for i, v := range views {
			out[i] = v
		}
		return out, nil
	})

	return lp
}

func (t *ListProvider) register(qry query.Query, fn ListFunc) {
	queryType := typeName(qry)
	if _, ok := t.handlers[queryType]; ok {
		panic("duplicate query handler " + queryType)
	}
	t.handlers[queryType] = fn
}

func (t *ListProvider) Handle(ctx context.Context, qry query.Query, res *query.IteratorResult) error {
	fn, exists := t.handlers[typeName(qry)]
	if !exists {
		return fmt.Errorf("unknown query type: %s", typeName(qry))
	}

	results, err := fn(ctx, qry)
	if err != nil {
		return err
	}

	for _, r := range results {
		res.Yield(r)
	}
	res.Done()

	return nil
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
