package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	domainauth "github.com/target/opsconsole/internal/domain/auth"
)

func id(key string, role domainauth.Role) domainauth.Identity {
	return domainauth.Identity{Key: key, Role: role}
}

func TestMerge_FallbackWins(t *testing.T) {
	fallback := []domainauth.Identity{id("103", domainauth.RoleManager)}
	remote := []domainauth.Identity{id("103", domainauth.RoleOperator), id("200", domainauth.RoleAdmin)}

	got := Merge(fallback, remote)

	assert.Equal(t, []domainauth.Identity{
		id("103", domainauth.RoleManager),
		id("200", domainauth.RoleAdmin),
	}, got)
}

func TestMerge_OrderAndDuplicates(t *testing.T) {
	fallback := []domainauth.Identity{id("b", domainauth.RoleAdmin), id("a", domainauth.RoleAdmin), id("b", domainauth.RoleOperator)}
	remote := []domainauth.Identity{id("z", domainauth.RoleOperator), id("a", domainauth.RoleOperator), id("y", domainauth.RoleOperator), id("z", domainauth.RoleAdmin)}

	got := Merge(fallback, remote)

	keys := make([]string, 0, len(got))
	for _, g := range got {
		keys = append(keys, g.Key)
	}
	assert.Equal(t, []string{"b", "a", "z", "y"}, keys)
	assert.Equal(t, domainauth.RoleAdmin, got[0].Role)
	assert.Equal(t, domainauth.RoleOperator, got[2].Role)
}

func TestMerge_EveryKeyOnce(t *testing.T) {
	fallback := []domainauth.Identity{id("1", domainauth.RoleAdmin), id("2", domainauth.RoleManager)}
	remote := []domainauth.Identity{id("2", domainauth.RoleOperator), id("1", domainauth.RoleOperator), id("3", domainauth.RoleOperator)}

	got := Merge(fallback, remote)

	counts := map[string]int{}
	for _, g := range got {
		counts[g.Key]++
	}
	assert.Equal(t, map[string]int{"1": 1, "2": 1, "3": 1}, counts)

	for _, f := range fallback {
		m, ok := Find(got, f.Key)
		assert.True(t, ok)
		assert.Equal(t, f, m)
	}
}

func TestMerge_Deterministic(t *testing.T) {
	fallback := []domainauth.Identity{id("1", domainauth.RoleAdmin)}
	remote := []domainauth.Identity{id("5", domainauth.RoleOperator), id("4", domainauth.RoleOperator)}

	assert.Equal(t, Merge(fallback, remote), Merge(fallback, remote))
}

func TestMerge_Empty(t *testing.T) {
	assert.Empty(t, Merge(nil, nil))
	assert.Equal(t, []domainauth.Identity{id("1", domainauth.RoleAdmin)}, Merge(nil, []domainauth.Identity{id("1", domainauth.RoleAdmin)}))
}

func TestFind_Missing(t *testing.T) {
	_, ok := Find([]domainauth.Identity{id("1", domainauth.RoleAdmin)}, "2")
	assert.False(t, ok)
}
