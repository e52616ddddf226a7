// Package adapter turns a query template with '?' placeholders into a parsed
// query and hands it to a storage-specific executor.
//
// A Query accumulates parameters across setter calls and may be executed
// once. It is not safe for concurrent use; build one Query per logical
// query.
package adapter

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/c360studio/artificer/artifact"
	"github.com/c360studio/artificer/metrics"
	"github.com/c360studio/artificer/query"
)

// Paging carries the ordering and windowing requested by the caller.
// Count of zero means no limit.
type Paging struct {
	OrderBy    string
	Ascending  bool
	StartIndex int
	Count      int
}

// ArtifactSet is the result of an executed query.
type ArtifactSet struct {
	Artifacts []*artifact.Artifact
	// Total is the number of matches before StartIndex and Count applied.
	Total int
}

// Size returns the number of artifacts in this page.
func (s *ArtifactSet) Size() int {
	return len(s.Artifacts)
}

// Executor runs a parsed query against a store.
type Executor interface {
	ExecuteQuery(ctx context.Context, q *query.Query, paging Paging) (*ArtifactSet, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, q *query.Query, paging Paging) (*ArtifactSet, error)

func (f ExecutorFunc) ExecuteQuery(ctx context.Context, q *query.Query, paging Paging) (*ArtifactSet, error) {
	return f(ctx, q, paging)
}

// Validator performs static checks on a parsed query before it runs.
type Validator interface {
	Validate(q *query.Query) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(q *query.Query) error

func (f ValidatorFunc) Validate(q *query.Query) error {
	return f(q)
}

// Option configures a Query.
type Option func(*Query)

// WithValidator sets the static validation hook.
func WithValidator(v Validator) Option {
	return func(q *Query) {
		q.validator = v
	}
}

// WithCache shares a parsed-query cache between Query instances.
func WithCache(c *Cache) Option {
	return func(q *Query) {
		q.cache = c
	}
}

// WithParser sets the parser used for the final query text.
func WithParser(p *query.Parser) Option {
	return func(q *Query) {
		q.parser = p
	}
}

// WithMetrics records each execution. Nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Query) {
		q.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Query) {
		q.logger = logger
	}
}

// Query binds replacement parameters into a template and executes it.
type Query struct {
	template  string
	params    []Param
	paging    Paging
	executor  Executor
	validator Validator
	cache     *Cache
	parser    *query.Parser
	metrics   *metrics.Metrics
	logger    *slog.Logger
	executed  bool
}

// New creates a Query for template. Results are ascending by default.
func New(template string, exec Executor, opts ...Option) *Query {
	q := &Query{
		template: template,
		executor: exec,
		paging:   Paging{Ascending: true},
		parser:   query.NewParser(),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = slog.Default()
	}
	return q
}

// SetString appends a string parameter.
func (q *Query) SetString(v string) *Query {
	return q.SetParam(StringParam(v))
}

// SetNumber appends an integer parameter.
func (q *Query) SetNumber(v int) *Query {
	return q.SetInt(int64(v))
}

// SetInt appends an integer parameter.
func (q *Query) SetInt(v int64) *Query {
	return q.SetParam(NumberParam{Int: v})
}

// SetFloat appends a decimal parameter.
func (q *Query) SetFloat(v float64) *Query {
	return q.SetParam(NumberParam{Float: v, IsFloat: true})
}

// SetBigInt appends an arbitrary-precision integer parameter.
func (q *Query) SetBigInt(v *big.Int) *Query {
	return q.SetParam(NumberParam{Big: new(big.Int).Set(v)})
}

// SetDate appends a date parameter, rendered as 'YYYY-MM-DD'.
func (q *Query) SetDate(v time.Time) *Query {
	return q.SetParam(DateParam(v))
}

// SetDateTime appends a timestamp parameter.
func (q *Query) SetDateTime(v time.Time) *Query {
	return q.SetParam(DateTimeParam(v))
}

// SetParam appends any parameter.
func (q *Query) SetParam(p Param) *Query {
	q.params = append(q.params, p)
	return q
}

// OrderBy sets the property results are sorted by.
func (q *Query) OrderBy(property string) *Query {
	q.paging.OrderBy = property
	return q
}

// Ascending sorts results in ascending order.
func (q *Query) Ascending() *Query {
	q.paging.Ascending = true
	return q
}

// Descending sorts results in descending order.
func (q *Query) Descending() *Query {
	q.paging.Ascending = false
	return q
}

// StartIndex skips the first n results.
func (q *Query) StartIndex(n int) *Query {
	q.paging.StartIndex = n
	return q
}

// Count limits the page to n results.
func (q *Query) Count(n int) *Query {
	q.paging.Count = n
	return q
}

// Text substitutes the parameters into the template and returns the final
// query text.
func (q *Query) Text() (string, error) {
	return FormatTemplate(q.template, q.params)
}

// Execute builds, parses, validates and runs the query.
func (q *Query) Execute(ctx context.Context) (*ArtifactSet, error) {
	if q.executed {
		return nil, ErrAlreadyExecuted
	}
	q.executed = true

	start := time.Now()
	set, err := q.execute(ctx)
	q.metrics.RecordQuery(time.Since(start), err)
	return set, err
}

func (q *Query) execute(ctx context.Context) (*ArtifactSet, error) {
	text, err := q.Text()
	if err != nil {
		return nil, err
	}

	parsed, err := q.parse(text)
	if err != nil {
		return nil, err
	}

	if q.validator != nil {
		if err := q.validator.Validate(parsed); err != nil {
			var invalid *InvalidQueryError
			if errors.As(err, &invalid) {
				return nil, err
			}
			return nil, &InvalidQueryError{Msg: "Query failed validation.", Cause: err}
		}
	}

	q.logger.Debug("Executing query", "query", text, "order_by", q.paging.OrderBy,
		"start", q.paging.StartIndex, "count", q.paging.Count)

	return q.executor.ExecuteQuery(ctx, parsed, q.paging)
}

func (q *Query) parse(text string) (*query.Query, error) {
	var bindings string
	if q.cache != nil {
		bindings = q.parser.Bindings()
		if cached, ok := q.cache.Get(bindings, text); ok {
			return cached, nil
		}
	}
	parsed, err := q.parser.Parse(text)
	if err != nil {
		return nil, &InvalidQueryError{Msg: "Query failed to parse.", Cause: err}
	}
	if q.cache != nil {
		q.cache.Add(bindings, text, parsed)
	}
	return parsed, nil
}

// FormatTemplate splits template on '?' and interleaves the formatted
// params. Every placeholder must have exactly one param.
func FormatTemplate(template string, params []Param) (string, error) {
	segments := strings.Split(template, "?")
	placeholders := len(segments) - 1
	if len(params) < placeholders {
		return "", &InvalidQueryError{Msg: "Not enough query replacement parameters provided."}
	}
	if len(params) > placeholders {
		return "", &InvalidQueryError{Msg: "Too many query replacement parameters provided."}
	}

	for _, p := range params {
		if v, ok := p.(validatingParam); ok {
			if err := v.Validate(); err != nil {
				return "", &InvalidQueryError{Msg: "Invalid query replacement parameter.", Cause: err}
			}
		}
	}

	var b strings.Builder
	for i, seg := range segments {
		b.WriteString(seg)
		if i < placeholders {
			b.WriteString(params[i].Format())
		}
	}
	return b.String(), nil
}
