package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/auth/login"),
		attribute.String("user.password", "hunter2"),
		attribute.String("session_token", "abc"),
		attribute.String("user.email", "a@b.c"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorKeepsOutermostMessage(t *testing.T) {
	err := fmt.Errorf("merchant_not_found: %w", errors.New("select * from merchants where email='x'"))
	assert.EqualError(t, SafeError(err), "merchant_not_found")
	assert.Nil(t, SafeError(nil))
}
