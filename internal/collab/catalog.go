package collab

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Compile-time interface check.
var _ Discoverer = (*CatalogDiscoverer)(nil)

// DefaultCatalog is the rival list used when none is configured.
var DefaultCatalog = []string{"Optimus", "Figure 02", "Atlas"}

// defaultRivals orders the rivals of each DefaultCatalog entry. Entries are
// matched in order by key token against the query; a query naming none of
// them gets DefaultCatalog order.
var defaultRivals = []struct {
	token  string
	rivals []string
}{
	{"figure", []string{"Optimus", "Atlas"}},
	{"optimus", []string{"Figure 02", "Atlas"}},
	{"atlas", []string{"Figure 02", "Optimus"}},
}

// DefaultMaxRivals is how many catalog entries follow the queried name.
const DefaultMaxRivals = 2

// CatalogDiscoverer discovers entities locally: the queried name first, then
// catalog entries that the query does not already name.
type CatalogDiscoverer struct {
	catalog   []string
	maxRivals int
	ordered   bool
}

// NewCatalogDiscoverer creates a discoverer over catalog. An empty catalog
// uses DefaultCatalog; maxRivals <= 0 uses DefaultMaxRivals.
func NewCatalogDiscoverer(catalog []string, maxRivals int) *CatalogDiscoverer {
	ordered := len(catalog) == 0
	if ordered {
		catalog = DefaultCatalog
	}
	if maxRivals <= 0 {
		maxRivals = DefaultMaxRivals
	}
	return &CatalogDiscoverer{
		catalog:   append([]string(nil), catalog...),
		maxRivals: maxRivals,
		ordered:   ordered,
	}
}

// Discover returns the query followed by up to maxRivals catalog entries. A
// catalog entry is skipped when its key token, the first word lower-cased,
// occurs in the lower-cased query. Blank entries are always skipped. With the
// default catalog, a query naming a catalog entry gets that entry's rivals in
// their fixed order.
func (d *CatalogDiscoverer) Discover(ctx context.Context, query string) (*DiscoveryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &RemoteError{Op: OpDiscover, Message: MsgMissingRobot}
	}

	lower := strings.ToLower(query)
	candidates := d.catalog
	if d.ordered {
		for _, r := range defaultRivals {
			if strings.Contains(lower, r.token) {
				candidates = r.rivals
				break
			}
		}
	}

	names := []string{query}
	for _, candidate := range candidates {
		if len(names) > d.maxRivals {
			break
		}
		if strings.Contains(lower, keyToken(candidate)) {
			continue
		}
		names = append(names, candidate)
	}

	return &DiscoveryResult{
		TaskID:   uuid.NewString(),
		Entities: NewEntities(names),
	}, nil
}

// keyToken is the first word of name, lower-cased.
func keyToken(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
