package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicFor(t *testing.T) {
	assert.Equal(t, "tracking.click.recorded", TopicFor("tracking", "click", "tracking.click.recorded"))
	assert.Equal(t, "prod.conversion.recorded", TopicFor("prod", "conversion", "tracking.conversion.recorded"))
	assert.Equal(t, "visitor.created", TopicFor("", "visitor", "tracking.visitor.created"))
	assert.Equal(t, "tracking.click.custom", TopicFor("tracking", "click", "custom"))
}
