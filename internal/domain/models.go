package domain

// Category groups items by name. Items whose category is missing fall into the
// implicit Uncategorized bucket.
type Category struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Uncategorized is the display label for items without a category.
const Uncategorized = "Uncategorized"

// Item is a row of the local inventory. RFID is empty until the item has been
// tagged; once set it is unique.
type Item struct {
	ID       int64  `db:"id" json:"id"`
	Category string `db:"category" json:"category,omitempty"`
	Name     string `db:"name" json:"name"`
	Stock    int    `db:"stock" json:"stock"`
	Price    string `db:"price" json:"price"` // decimal as text
	Image    string `db:"img" json:"image,omitempty"`
	RFID     string `db:"rfid" json:"rfid,omitempty"`
}

// Record is the authoritative bridge row. Keyed by RFID.
type Record struct {
	RFID     string `json:"rfid"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Category string `json:"category"`
}

func (it Item) Record() Record {
	return Record{RFID: it.RFID, Name: it.Name, Price: it.Price, Category: it.Category}
}

// CategoryTotal is the per-category stock summary.
type CategoryTotal struct {
	ID         int64  `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	TotalStock int    `db:"total_stock" json:"total_stock"`
	Value      string `db:"-" json:"value"` // sum of stock*price
}
