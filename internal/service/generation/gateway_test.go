package generation_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/clanker/backend/internal/model/chat"
	"github.com/zhouzirui/clanker/backend/internal/service/generation"
)

type countingText struct {
	calls   int
	results []generation.Result[string]
}

func (c *countingText) Enabled() bool { return true }

func (c *countingText) GenerateText(_ context.Context, _ []chat.Turn, _ string) generation.Result[string] {
	c.calls++
	if len(c.results) == 0 {
		return generation.OK("ok")
	}
	r := c.results[0]
	c.results = c.results[1:]
	return r
}

func TestBreakerTripsOnceAndStaysTripped(t *testing.T) {
	b := generation.NewQuotaBreaker(generation.KindText)
	assert.False(t, b.Tripped())
	assert.True(t, b.Trip())
	assert.False(t, b.Trip())
	assert.True(t, b.Tripped())
}

func TestGatewayShortCircuitsAfterQuota(t *testing.T) {
	text := &countingText{results: []generation.Result[string]{generation.QuotaExceeded[string]()}}
	gw := generation.NewGateway(text, nil, nil, nil)

	first := gw.GenerateText(context.Background(), nil, "hi")
	require.Equal(t, generation.StatusQuotaExceeded, first.Status)
	require.True(t, gw.Breaker(generation.KindText).Tripped())

	for i := 0; i < 5; i++ {
		res := gw.GenerateText(context.Background(), nil, "again")
		assert.Equal(t, generation.StatusQuotaExceeded, res.Status)
	}
	assert.Equal(t, 1, text.calls, "tripped breaker must not reach the provider")
}

func TestGatewayBreakersAreIndependent(t *testing.T) {
	text := &countingText{}
	gw := generation.NewGateway(text, nil, nil, nil)
	gw.Breaker(generation.KindImage).Trip()

	res := gw.GenerateText(context.Background(), nil, "hi")
	assert.True(t, res.Ok())
	assert.Equal(t, "ok", res.Value)
}

func TestGatewayDisabledCapabilities(t *testing.T) {
	gw := generation.NewGateway(nil, nil, nil, nil)
	assert.False(t, gw.Enabled(generation.KindText))
	assert.Equal(t, generation.StatusNotConfigured, gw.GenerateText(context.Background(), nil, "x").Status)
	assert.Equal(t, generation.StatusNotConfigured, gw.GenerateImage(context.Background(), "x").Status)
	assert.Equal(t, generation.StatusNotConfigured, gw.GenerateMusic(context.Background(), "x").Status)
	assert.Equal(t, generation.StatusNotConfigured, gw.SynthesizeSpeech(context.Background(), "x").Status)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want generation.Status
	}{
		{"sentinel quota", fmt.Errorf("call: %w", generation.ErrQuotaExceeded), generation.StatusQuotaExceeded},
		{"status 429", &generation.StatusError{Code: 429, Body: "slow down"}, generation.StatusQuotaExceeded},
		{"status 500", &generation.StatusError{Code: 500, Body: "boom"}, generation.StatusTransient},
		{"grpc style", errors.New("Error 429, Message: Resource has been exhausted, Status: RESOURCE_EXHAUSTED"), generation.StatusQuotaExceeded},
		{"not configured", generation.ErrNotConfigured, generation.StatusNotConfigured},
		{"deadline", context.DeadlineExceeded, generation.StatusTransient},
		{"other", errors.New("connection reset"), generation.StatusTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, generation.Classify(tc.err))
		})
	}
}

func TestFromError(t *testing.T) {
	res := generation.FromError("", errors.New("network down"))
	assert.Equal(t, generation.StatusTransient, res.Status)
	assert.Equal(t, "network down", res.Message)

	ok := generation.FromError("value", nil)
	assert.True(t, ok.Ok())
	assert.Equal(t, "value", ok.Value)
}
