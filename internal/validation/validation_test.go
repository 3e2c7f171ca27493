package validation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateServices(t *testing.T) {
	var probed []string
	ok := func(name string) Check {
		return func(context.Context) error {
			probed = append(probed, name)
			return nil
		}
	}

	sv := NewServiceValidator([]string{" Redis ", "", "s3"})
	sv.Register(ServiceRedis, ok(ServiceRedis))
	sv.Register(ServiceS3, ok(ServiceS3))
	sv.Register(ServiceElasticsearch, ok(ServiceElasticsearch))

	require.NoError(t, sv.ValidateServices(context.Background()))
	assert.Equal(t, []string{"redis", "s3"}, probed)
	assert.Equal(t, []string{"elasticsearch", "redis", "s3"}, sv.Known())
}

func TestValidateServicesFailures(t *testing.T) {
	down := errors.New("connection refused")

	sv := NewServiceValidator([]string{"ffmpeg"})
	sv.Register(ServiceFFmpeg, func(context.Context) error { return down })
	err := sv.ValidateServices(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, down)
	assert.Contains(t, err.Error(), "ffmpeg")

	sv = NewServiceValidator([]string{"kafka"})
	sv.Register(ServiceRedis, func(context.Context) error { return nil })
	err = sv.ValidateServices(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a known service")

	assert.NoError(t, NewServiceValidator(nil).ValidateServices(context.Background()))
}
