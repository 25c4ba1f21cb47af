package crawler

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oniontracex/oniontracex/internal/tor"
	"github.com/oniontracex/oniontracex/pkg/models"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassifyFetch(t *testing.T) {
	cases := []struct {
		name string
		res  *tor.FetchResult
		err  error
		want models.SiteStatus
	}{
		{"ok", &tor.FetchResult{StatusCode: 200}, nil, models.StatusAlive},
		{"redirect", &tor.FetchResult{StatusCode: 302}, nil, models.StatusAlive},
		{"client error", &tor.FetchResult{StatusCode: 404}, nil, models.StatusDead},
		{"server error", &tor.FetchResult{StatusCode: 503}, nil, models.StatusDead},
		{"deadline", nil, context.DeadlineExceeded, models.StatusTimeout},
		{"wrapped deadline", nil, errors.Join(errors.New("get"), context.DeadlineExceeded), models.StatusTimeout},
		{"net timeout", nil, timeoutErr{}, models.StatusTimeout},
		{"refused", nil, errors.New("connection refused"), models.StatusError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyFetch(tc.res, tc.err))
		})
	}
}
