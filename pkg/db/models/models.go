package models

// All lists every persisted model, in dependency order, for AutoMigrate in
// tests and local tooling. Production schema changes go through migrations.
func All() []any {
	return []any{
		&InventoryRecord{},
		&InventoryLogEntry{},
		&Reservation{},
		&ChannelOrder{},
		&ChannelProduct{},
		&ChannelCustomer{},
		&DispatchDeadLetter{},
	}
}
