package tables

import "github.com/JonMunkholm/carimport/internal/core"

// AutosKey is the classifieds feed table.
const AutosKey = "autos"

func init() {
	registerAutos()
}

func registerAutos() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:          AutosKey,
			Group:        "Classifieds",
			Label:        "Autos",
			IdentityKeys: []string{"vin"},
		},
		FieldSpecs: []core.FieldSpec{
			integer("category_id"),
			text("category_name", 255),
			text("body_type", 100),
			text("manufacturer", 100),
			text("model", 100),
			integer("power_kw"),
			integer("power_hp"),
			text("vin", 50),
			text("color", 50),
			integer("condition_id"),
			text("description", 0),
			integer("status"),
			text("currency", 10),
			decimal("vat_rate"),
			decimal("price"),
			decimal("vat_amount"),
			decimal("net_price"),
			flag("featured"),
			flag("sold"),
			text("finance_bank", 100),
			decimal("finance_rate"),
			text("country_code", 2),
			text("video_url", 255),
			text("energy_rating", 5),
			text("fuel_type", 50),
		},
	})
}
