package points

import "github.com/xraph/points/id"

// ID is the primary identifier type for all Points entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
