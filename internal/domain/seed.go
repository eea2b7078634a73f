package domain

// SeedItems returns the built-in catalog used when no external catalog
// source is configured. Prices are list prices in USD.
func SeedItems() []Item {
	return []Item{
		{ID: "item-001", Name: "Standing Desk", Description: "Electric sit-stand desk, 120x80cm, memory presets", Price: 499.00, Category: "furniture", Availability: "in_stock"},
		{ID: "item-002", Name: "Ergonomic Office Chair", Description: "Mesh back task chair with lumbar support and adjustable arms", Price: 289.00, Category: "furniture", Availability: "in_stock"},
		{ID: "item-003", Name: "Monitor Arm", Description: "Single monitor gas-spring arm, fits 17-32 inch displays", Price: 79.00, Category: "furniture", Availability: "in_stock"},
		{ID: "item-010", Name: "27-inch 4K Monitor", Description: "IPS panel, USB-C with 90W power delivery", Price: 429.00, Category: "electronics", Availability: "in_stock"},
		{ID: "item-011", Name: "Mechanical Keyboard", Description: "Tenkeyless, hot-swappable switches, USB-C", Price: 119.00, Category: "electronics", Availability: "in_stock"},
		{ID: "item-012", Name: "Wireless Mouse", Description: "Ergonomic vertical mouse, 2.4GHz and Bluetooth", Price: 49.00, Category: "electronics", Availability: "in_stock"},
		{ID: "item-013", Name: "USB-C Dock", Description: "Dual HDMI, gigabit ethernet, 100W passthrough", Price: 189.00, Category: "electronics", Availability: "in_stock"},
		{ID: "item-014", Name: "Noise Cancelling Headphones", Description: "Over-ear, 30h battery, boom mic for calls", Price: 249.00, Category: "electronics", Availability: "low_stock"},
		{ID: "item-015", Name: "Webcam", Description: "1080p60 webcam with privacy shutter", Price: 89.00, Category: "electronics", Availability: "in_stock"},
		{ID: "item-016", Name: "Laptop Stand", Description: "Aluminium riser, adjustable height and angle", Price: 45.00, Category: "electronics", Availability: "in_stock"},
		{ID: "item-020", Name: "Whiteboard", Description: "Magnetic dry-erase board, 120x90cm, wall mounted", Price: 95.00, Category: "office-supplies", Availability: "in_stock"},
		{ID: "item-021", Name: "Notebook Pack", Description: "Pack of 5 A5 dotted notebooks", Price: 18.50, Category: "office-supplies", Availability: "in_stock"},
		{ID: "item-022", Name: "Gel Pen Set", Description: "Box of 12 black 0.5mm gel pens", Price: 9.90, Category: "office-supplies", Availability: "in_stock"},
		{ID: "item-023", Name: "Desk Organizer", Description: "Bamboo desktop organizer with drawer", Price: 32.00, Category: "office-supplies", Availability: "out_of_stock"},
		{ID: "item-030", Name: "Coffee Beans 1kg", Description: "Medium roast whole beans for the office machine", Price: 24.00, Category: "pantry", Availability: "in_stock"},
		{ID: "item-031", Name: "Sparkling Water Case", Description: "24x330ml cans of unflavored sparkling water", Price: 15.00, Category: "pantry", Availability: "in_stock"},
	}
}
