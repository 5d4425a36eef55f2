package validation

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gofhir/hl7v2/cache"
	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/issue"
	"github.com/gofhir/hl7v2/pkg/model"
)

// DefaultCacheSize is the number of effective rule sets a Context keeps.
const DefaultCacheSize = 256

// Context holds rule bindings and answers which rules apply where. Lookups
// keep registration order. Effective sets are cached until the next
// registration or toggle.
type Context struct {
	mu        sync.RWMutex
	primitive []*Binding[PrimitiveRule]
	message   []*Binding[MessageRule]
	encoding  []*Binding[EncodingRule]

	// generation is part of every cache key, so sets computed before an
	// invalidation are never served after it.
	generation     atomic.Uint64
	primitiveCache *cache.Cache[string, []PrimitiveRule]
	messageCache   *cache.Cache[string, []MessageRule]
	encodingCache  *cache.Cache[string, []EncodingRule]
}

// NewContext creates a context without bindings.
func NewContext() *Context {
	return NewContextWithCacheSize(DefaultCacheSize)
}

// NewContextWithCacheSize creates an empty context whose effective rule set
// caches hold up to size entries each.
func NewContextWithCacheSize(size int) *Context {
	return &Context{
		primitiveCache: cache.New[string, []PrimitiveRule](size),
		messageCache:   cache.New[string, []MessageRule](size),
		encodingCache:  cache.New[string, []EncodingRule](size),
	}
}

func (c *Context) invalidate() {
	c.generation.Add(1)
	c.primitiveCache.Clear()
	c.messageCache.Clear()
	c.encodingCache.Clear()
}

// AddPrimitiveRule binds rule to a version and a primitive type name.
func (c *Context) AddPrimitiveRule(version, typeName string, rule PrimitiveRule) *Binding[PrimitiveRule] {
	b := &Binding[PrimitiveRule]{Version: version, Scope: typeName, Rule: rule, owner: c}
	c.mu.Lock()
	c.primitive = append(c.primitive, b)
	c.mu.Unlock()
	c.invalidate()
	return b
}

// AddMessageRule binds rule to a version and a TYPE^EVENT scope.
func (c *Context) AddMessageRule(version, scope string, rule MessageRule) *Binding[MessageRule] {
	b := &Binding[MessageRule]{Version: version, Scope: scope, Rule: rule, owner: c}
	c.mu.Lock()
	c.message = append(c.message, b)
	c.mu.Unlock()
	c.invalidate()
	return b
}

// AddEncodingRule binds rule to a version and an encoding name.
func (c *Context) AddEncodingRule(version, encoding string, rule EncodingRule) *Binding[EncodingRule] {
	b := &Binding[EncodingRule]{Version: version, Scope: encoding, Rule: rule, owner: c}
	c.mu.Lock()
	c.encoding = append(c.encoding, b)
	c.mu.Unlock()
	c.invalidate()
	return b
}

func (c *Context) key(parts ...string) string {
	k := strconv.FormatUint(c.generation.Load(), 10)
	for _, p := range parts {
		k += "|" + p
	}
	return k
}

// effective filters bindings down to the active rules accepted by match.
func effective[R any](c *Context, bindings *[]*Binding[R], version string, match func(*Binding[R]) bool) []R {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []R
	for _, b := range *bindings {
		if b.appliesTo(version) && match(b) {
			out = append(out, b.Rule)
		}
	}
	return out
}

// PrimitiveRules returns the active rules for a primitive type.
func (c *Context) PrimitiveRules(version, typeName string) []PrimitiveRule {
	k := c.key(version, typeName)
	if rules, ok := c.primitiveCache.Get(k); ok {
		return rules
	}
	rules := effective(c, &c.primitive, version, func(b *Binding[PrimitiveRule]) bool {
		return matches(b.Scope, typeName)
	})
	c.primitiveCache.Set(k, rules)
	return rules
}

// MessageRules returns the active rules for a message type and event.
func (c *Context) MessageRules(version, msgType, event string) []MessageRule {
	k := c.key(version, msgType, event)
	if rules, ok := c.messageCache.Get(k); ok {
		return rules
	}
	rules := effective(c, &c.message, version, func(b *Binding[MessageRule]) bool {
		return matchesEvent(b.Scope, msgType, event)
	})
	c.messageCache.Set(k, rules)
	return rules
}

// EncodingRules returns the active rules for an encoding.
func (c *Context) EncodingRules(version, encoding string) []EncodingRule {
	k := c.key(version, encoding)
	if rules, ok := c.encodingCache.Get(k); ok {
		return rules
	}
	rules := effective(c, &c.encoding, version, func(b *Binding[EncodingRule]) bool {
		return matches(b.Scope, encoding)
	})
	c.encodingCache.Set(k, rules)
	return rules
}

// ValidatePrimitive implements model.ValueValidator. Each rule corrects the
// value and then tests it, in registration order. The fully corrected value
// is returned together with the first failure.
func (c *Context) ValidatePrimitive(version, typeName, value string) (string, error) {
	var failed PrimitiveRule
	for _, r := range c.PrimitiveRules(version, typeName) {
		value = r.Correct(value)
		if failed == nil && !IsNull(value) && !r.Test(value) {
			failed = r
		}
	}
	if failed != nil {
		msg := issue.FormatDiagnostic(issue.DiagValueFormat, map[string]any{"value": value, "type": typeName})
		return value, hl7err.DataType("%s (%s)", msg, failed.Description())
	}
	return value, nil
}

// CacheStats returns the statistics of the primitive rule set cache.
func (c *Context) CacheStats() cache.Stats {
	return c.primitiveCache.Stats()
}

var _ model.ValueValidator = (*Context)(nil)
