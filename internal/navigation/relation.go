package navigation

import (
	"context"
	"slices"
)

// DependencyInferer answers whether parent is a parent resource of child,
// i.e. whether child records must be deleted before parent records. The
// context slices hold action indices that illustrate each resource.
type DependencyInferer interface {
	InferDependency(ctx context.Context, parent string, parentContext []int, child string, childContext []int) (bool, error)
}

// InfererFunc adapts a function to DependencyInferer.
type InfererFunc func(ctx context.Context, parent string, parentContext []int, child string, childContext []int) (bool, error)

// InferDependency calls f.
func (f InfererFunc) InferDependency(ctx context.Context, parent string, parentContext []int, child string, childContext []int) (bool, error) {
	return f(ctx, parent, parentContext, child, childContext)
}

// RelationCache stores oracle answers per ordered (parent, child) pair for
// the lifetime of one crawl session.
type RelationCache interface {
	// Lookup returns the stored answer and whether one exists.
	Lookup(ctx context.Context, parent, child string) (related, found bool, err error)

	// Store records an answer.
	Store(ctx context.Context, parent, child string, related bool) error
}

type relationKey struct {
	parent string
	child  string
}

// MemoryRelationCache is the default RelationCache.
type MemoryRelationCache struct {
	entries map[relationKey]bool
}

// NewMemoryRelationCache creates an empty cache.
func NewMemoryRelationCache() *MemoryRelationCache {
	return &MemoryRelationCache{entries: make(map[relationKey]bool)}
}

// Lookup implements RelationCache.
func (m *MemoryRelationCache) Lookup(_ context.Context, parent, child string) (bool, bool, error) {
	v, ok := m.entries[relationKey{parent: parent, child: child}]
	return v, ok, nil
}

// Store implements RelationCache.
func (m *MemoryRelationCache) Store(_ context.Context, parent, child string, related bool) error {
	m.entries[relationKey{parent: parent, child: child}] = related
	return nil
}

// inferRelation resolves (parent, child) through the cache first. A cached
// positive answer for the reversed pair rules the relation out without
// asking the oracle. Oracle errors are logged and count as "unrelated";
// they are not cached so a later call can retry.
func (g *DependencyGraph) inferRelation(ctx context.Context, parent string, parentContext []int, child string, childContext []int) bool {
	if related, found, err := g.relations.Lookup(ctx, parent, child); err != nil {
		g.logger.Warn("relation cache lookup failed", "parent", parent, "child", child, "error", err)
	} else if found {
		if related {
			g.recordParent(child, parent)
		}
		return related
	}

	if reversed, found, err := g.relations.Lookup(ctx, child, parent); err == nil && found && reversed {
		return false
	}

	if g.inferer == nil {
		return false
	}

	related, err := g.inferer.InferDependency(ctx, parent, parentContext, child, childContext)
	if err != nil {
		g.logger.Warn("dependency inference failed", "parent", parent, "child", child, "error", err)
		return false
	}

	if err := g.relations.Store(ctx, parent, child, related); err != nil {
		g.logger.Warn("relation cache store failed", "parent", parent, "child", child, "error", err)
	}
	if related {
		g.recordParent(child, parent)
		g.logger.Info("resource dependency confirmed", "parent", parent, "child", child)
	}
	return related
}

func (g *DependencyGraph) recordParent(child, parent string) {
	if !slices.Contains(g.parents[child], parent) {
		g.parents[child] = append(g.parents[child], parent)
	}
}
