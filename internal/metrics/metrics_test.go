package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInitializeIsSingleton(t *testing.T) {
	assert.Same(t, Initialize(), Get())
}

func TestTranscodeFinished(t *testing.T) {
	m := Get()
	before := testutil.ToFloat64(m.TranscodeJobsTotal.WithLabelValues("failed"))

	m.TranscodeFinished("failed", 1.5)

	assert.Equal(t, before+1, testutil.ToFloat64(m.TranscodeJobsTotal.WithLabelValues("failed")))
}

func TestSocial(t *testing.T) {
	m := Get()
	before := testutil.ToFloat64(m.SocialActionsTotal.WithLabelValues("like"))
	m.Social("like")
	assert.Equal(t, before+1, testutil.ToFloat64(m.SocialActionsTotal.WithLabelValues("like")))
}
