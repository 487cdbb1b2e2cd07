package history

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// MaxQueryLimit is the maximum number of records a single query returns.
const MaxQueryLimit = 10000

// QueryError reports an invalid query.
type QueryError struct {
	Field string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid query parameter %s: %v", e.Field, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Validate checks the bounds of q.
func (q *Query) Validate() error {
	if q.Limit < 0 {
		return &QueryError{Field: "limit", Err: fmt.Errorf("must be >= 0, got %d", q.Limit)}
	}
	if q.Limit > MaxQueryLimit {
		return &QueryError{Field: "limit", Err: fmt.Errorf("must be <= %d, got %d", MaxQueryLimit, q.Limit)}
	}
	if q.Offset < 0 {
		return &QueryError{Field: "offset", Err: fmt.Errorf("must be >= 0, got %d", q.Offset)}
	}
	if q.Since != nil && q.Until != nil && q.Since.After(*q.Until) {
		return &QueryError{Field: "since", Err: fmt.Errorf("must not be after until")}
	}
	return nil
}

// ParseQuery builds a validated Query from URL parameters: limit, offset,
// host, backend, websocket (bool) and since/until (RFC 3339).
func ParseQuery(values url.Values) (*Query, error) {
	q := &Query{
		Host:    values.Get("host"),
		Backend: values.Get("backend"),
	}

	var err error
	if q.Limit, err = intParam(values, "limit"); err != nil {
		return nil, err
	}
	if q.Offset, err = intParam(values, "offset"); err != nil {
		return nil, err
	}

	if v := values.Get("websocket"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &QueryError{Field: "websocket", Err: err}
		}
		q.WebSocket = &b
	}

	if q.Since, err = timeParam(values, "since"); err != nil {
		return nil, err
	}
	if q.Until, err = timeParam(values, "until"); err != nil {
		return nil, err
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func intParam(values url.Values, name string) (int, error) {
	v := values.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &QueryError{Field: name, Err: err}
	}
	return n, nil
}

func timeParam(values url.Values, name string) (*time.Time, error) {
	v := values.Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, &QueryError{Field: name, Err: err}
	}
	return &t, nil
}
