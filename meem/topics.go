package meem

import (
	"fmt"
	"strings"
)

const (
	// DefaultRoot is the registry root all device traffic is nested under.
	DefaultRoot = "meem"

	// DefaultBufferSize is the scratch buffer capacity. Topics and inbound payloads must fit in it.
	DefaultBufferSize = 128

	// ConfigFacet is the reserved inbound segment for device configuration messages.
	ConfigFacet = "$config"
)

const (
	lifecycleSegment = "lifecycle"
	wildcardSegment  = "#"
)

// Topics builds the topic strings of the meem naming scheme:
//
//	<root>                       registry add/remove
//	<root>/<id>                  facet announcement
//	<root>/<id>/lifecycle        lifecycle state
//	<root>/<id>/in/#             inbound subscription
//	<root>/<id>/in/<facet>       inbound facet
//	<root>/<id>/out/<facet>      outbound facet
//
// A topic longer than Capacity is refused, never truncated. Capacity 0 disables the check.
type Topics struct {
	Root     string
	Capacity int
}

// Registry returns the registry-wide add/remove topic.
func (t Topics) Registry() (string, error) {
	if err := validateRoot(t.Root); err != nil {
		return "", err
	}
	return t.join(t.Root)
}

// Device returns the per device topic used for the facet announcement.
//
// Example: meem/dev-1
func (t Topics) Device(id string) (string, error) {
	return t.build(id)
}

// Lifecycle returns the lifecycle state topic.
//
// Example: meem/dev-1/lifecycle
func (t Topics) Lifecycle(id string) (string, error) {
	return t.build(id, lifecycleSegment)
}

// InboundWildcard returns the subscription pattern covering every inbound facet.
//
// Example: meem/dev-1/in/#
func (t Topics) InboundWildcard(id string) (string, error) {
	return t.build(id, In.String(), wildcardSegment)
}

// Inbound returns the topic a command for the named facet arrives on.
//
// Example: meem/dev-1/in/relay
func (t Topics) Inbound(id, facet string) (string, error) {
	if err := validateSegment(facet); err != nil {
		return "", err
	}
	return t.build(id, In.String(), facet)
}

// Outbound returns the topic readings of the named facet are published on.
//
// Example: meem/dev-1/out/temp
func (t Topics) Outbound(id, facet string) (string, error) {
	if err := validateSegment(facet); err != nil {
		return "", err
	}
	return t.build(id, Out.String(), facet)
}

// Config returns the reserved inbound topic for configuration messages.
//
// Example: meem/dev-1/in/$config
func (t Topics) Config(id string) (string, error) {
	return t.build(id, In.String(), ConfigFacet)
}

// build validates root and id and joins root, id and the fixed segments.
func (t Topics) build(id string, segments ...string) (string, error) {
	if err := validateRoot(t.Root); err != nil {
		return "", err
	}
	if err := validateSegment(id); err != nil {
		return "", err
	}
	return t.join(append([]string{t.Root, id}, segments...)...)
}

func (t Topics) join(parts ...string) (string, error) {
	size := len(parts) - 1
	for _, p := range parts {
		size += len(p)
	}
	if t.Capacity > 0 && size > t.Capacity {
		return "", fmt.Errorf("%w: %d bytes, capacity %d", ErrTopicTooLong, size, t.Capacity)
	}
	var sb strings.Builder
	sb.Grow(size)
	for i, p := range parts {
		if i > 0 {
			sb.WriteByte('/')
		}
		sb.WriteString(p)
	}
	return sb.String(), nil
}

// validateRoot accepts multi level roots such as "site/meem" but no wildcards.
func validateRoot(root string) error {
	if root == "" {
		return fmt.Errorf("%w: empty root", ErrInvalidTopic)
	}
	if strings.ContainsAny(root, "+#") || strings.HasPrefix(root, "/") || strings.HasSuffix(root, "/") {
		return fmt.Errorf("%w: root %q", ErrInvalidTopic, root)
	}
	return nil
}

func validateSegment(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty segment", ErrInvalidTopic)
	}
	if strings.ContainsAny(s, "/+#") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, s)
	}
	return nil
}
