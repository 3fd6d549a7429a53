// Package domain defines the persistence models for accounts, entitlements,
// chat links, trials, and subscriptions. These types are mapped with GORM and
// form the core data layer of the companion accounts service.
package domain

// Character identifies one of the fixed catalogue of companion personas.
// It is stored as a plain string column but must always be one of the
// enumerated values below; every switch over Character is expected to be
// exhaustive so that an unknown value never silently falls through.
type Character string

// The full persona catalogue. The set is closed: adding a persona means
// adding a constant here plus its catalogue entry in config.
const (
	CharacterSadie   Character = "sadie"
	CharacterCole    Character = "cole"
	CharacterNora    Character = "nora"
	CharacterElliott Character = "elliott"
	CharacterClara   Character = "clara"
	CharacterSean    Character = "sean"
)

// AllCharacters lists every valid Character in catalogue order.
func AllCharacters() []Character {
	return []Character{
		CharacterSadie,
		CharacterCole,
		CharacterNora,
		CharacterElliott,
		CharacterClara,
		CharacterSean,
	}
}

// Valid reports whether c is a member of the catalogue.
func (c Character) Valid() bool {
	switch c {
	case CharacterSadie, CharacterCole, CharacterNora,
		CharacterElliott, CharacterClara, CharacterSean:
		return true
	}
	return false
}

// String returns the wire representation of the character.
func (c Character) String() string { return string(c) }

// ParseCharacter converts a raw string into a Character, reporting whether
// the value belongs to the catalogue.
func ParseCharacter(s string) (Character, bool) {
	c := Character(s)
	return c, c.Valid()
}
