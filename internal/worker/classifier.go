package worker

import (
	"fmt"
	"strings"

	"camera-alert-service/internal/models"
)

// Classifier derives a severity and description from an event. It must be a
// pure function of the event's attributes.
type Classifier interface {
	Classify(event models.Event) (severity, description string)
}

// ThresholdClassifier is the stand-in decision function: an event is critical
// when its confidence reaches the threshold or its type is in the critical
// set. Real perceptual classification is out of scope and plugs in behind the
// Classifier interface.
type ThresholdClassifier struct {
	criticalThreshold float64
	criticalTypes     map[string]struct{}
}

// NewThresholdClassifier builds a classifier from a confidence threshold and
// a comma-separated list of always-critical event types.
func NewThresholdClassifier(threshold float64, criticalTypes string) *ThresholdClassifier {
	types := make(map[string]struct{})
	for _, t := range strings.Split(criticalTypes, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			types[t] = struct{}{}
		}
	}
	return &ThresholdClassifier{criticalThreshold: threshold, criticalTypes: types}
}

func (c *ThresholdClassifier) Classify(event models.Event) (string, string) {
	severity := models.SeverityNormal
	if event.Confidence >= c.criticalThreshold {
		severity = models.SeverityCritical
	}
	if _, ok := c.criticalTypes[event.EventType]; ok {
		severity = models.SeverityCritical
	}
	description := fmt.Sprintf("Processed %s event from device %s", event.EventType, event.DeviceID)
	return severity, description
}
