package enums

// AlertType is the severity band of an inventory threshold alert.
type AlertType string

const (
	AlertTypeOutOfStock    AlertType = "out_of_stock"
	AlertTypeRestockNeeded AlertType = "restock_needed"
	AlertTypeLowStock      AlertType = "low_stock"
)

var validAlertTypes = []AlertType{
	AlertTypeOutOfStock,
	AlertTypeRestockNeeded,
	AlertTypeLowStock,
}

func (a AlertType) IsValid() bool {
	for _, candidate := range validAlertTypes {
		if candidate == a {
			return true
		}
	}
	return false
}
