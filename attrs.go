package obs

import "go.opentelemetry.io/otel/attribute"

// Attr is a key-value pair for span attributes and metric dimensions.
// Build them with the standard constructors:
//
//	obs.SetActiveAttributes(ctx,
//	    attribute.String("ingredient.id", id),
//	    attribute.Int64("retry.count", 3),
//	)
type Attr = attribute.KeyValue

// AttrKey is an attribute key.
type AttrKey = attribute.Key
