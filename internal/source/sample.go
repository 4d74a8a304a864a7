package source

import "storefront/internal/model"

// Sample is a small mixed-quality catalog used by the demo loader.
func Sample() Static {
	return Static{
		{
			Name: model.Str("Royal Blue Kanjivaram"), Category: model.Str("Kanjivaram Silk"),
			Fabric: model.Str("pure silk"), Occasion: model.Str("wedding"),
			Price: model.Num(12499), OriginalPrice: model.Num(15999),
			Images:  model.List("https://cdn.example.com/sarees/kanji-blue-1.jpg", "https://cdn.example.com/sarees/kanji-blue-2.jpg"),
			InStock: model.Num(4), Rating: model.Num(4.8), Reviews: model.Num(126),
			Colors: model.List("blue", "gold"), Featured: model.Bool(true),
		},
		{
			Name: model.Str("Mint Cotton Handloom"), Category: model.Str("cotton"),
			Price: model.Num(1899), Image: model.Str("https://cdn.example.com/sarees/mint-cotton.jpg"),
			InStock: model.Num(25), Reviews: model.Num(40), Rating: model.Num(4.2),
			Color: model.Str("mint, white"), BlouseIncluded: model.Bool(false),
		},
		{
			Name: model.Str("Banarasi Brocade Red"), Category: model.Str("Banarasi"),
			Fabric: model.Str("katan silk"), Occasion: model.Str("festive"),
			Price: model.Num(8999), OriginalPrice: model.Num(8999),
			Images:  model.List("https://cdn.example.com/sarees/banarasi-red.jpg"),
			InStock: model.Num(0), Rating: model.Num(4.6), Reviews: model.Num(88),
			SKU: model.Str("BNR-BBR-0001"),
		},
		{
			Name: model.Str("Georgette Party Drape"), Category: model.Str("party wear"),
			Price: model.Num(3499), OriginalPrice: model.Num(4999),
			InStock: model.Num(12), Rating: model.Num(9), Reviews: model.Num(17),
			Length: model.Num(6.3),
		},
		{
			Description: model.Str("Lightweight linen for everyday wear."),
			Category:    model.Str("Linen"), Price: model.Num(2299), InStock: model.Num(7),
		},
	}
}
