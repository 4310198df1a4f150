package tracer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xob0t/GoCard/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	ctx, span := StartSpan(context.Background(), "render")
	assert.NotNil(t, ctx)
	RecordError(span, errors.New("boom"))
	span.End()
}

func TestSetupUnsupportedExporter(t *testing.T) {
	_, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "zipkin"})
	assert.Error(t, err)
}

func TestAttrs(t *testing.T) {
	assert.Equal(t, "template", string(StringAttr("template", "a.jpg").Key))
	assert.Equal(t, int64(800), IntAttr("width", 800).Value.AsInt64())
}
