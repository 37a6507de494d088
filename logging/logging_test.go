package logging

import (
	"testing"

	"go.viam.com/test"
)

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Infow("Number cameras", "count", 3)
	sub := logger.Sublogger("colmap")
	sub.Warnf("camera %d has no image", 7)
	sub.Debugf("skipping %q", "readme.md")

	test.That(t, logs.Len(), test.ShouldEqual, 3)
	test.That(t, logs.FilterMessage("Number cameras").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterMessage("camera 7 has no image").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterLoggerName("colmap").Len(), test.ShouldEqual, 2)
	test.That(t, logs.All()[0].ContextMap()["count"], test.ShouldEqual, int64(3))
}
