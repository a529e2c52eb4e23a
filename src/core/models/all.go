package models

// All lists every model managed by the schema, in dependency order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Post{},
		&Tag{},
		&PostTag{},
		&Comment{},
		&PostImage{},
	}
}
