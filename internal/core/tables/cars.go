package tables

import "github.com/JonMunkholm/carimport/internal/core"

// CarsKey is the dealer back-office vehicle table.
const CarsKey = "cars"

func init() {
	registerCars()
}

// carsFields is the column schema of the dealer export. Column names are the
// export's header names and the database column names at the same time.
func carsFields() []core.FieldSpec {
	fields := []core.FieldSpec{
		// Import metadata
		text(core.ColumnUsername, 100),
		integer(core.ColumnToken),

		// Identification
		required(text("kundennummer", 40)),
		required(text("interne_nummer", 40)),
		required(text("car_type", 50)),
		required(text("marke", 100)),
		required(text("modell", 100)),
		text("modell_beschreibung", 255),
		text("vin", 17),
		text("hsn", 4),
		text("tsn", 3),
		text("haendler_id", 40),
		text("mobile_ad_id", 40),
		text("autoscout_id", 40),
		text("status", 20),

		// Technical data
		integer("leistung"),
		integer("ccm"),
		integer("kilometer"),
		integer("anzahl_tueren"),
		integer("sitzplaetze"),
		integer("anzahl_vorbesitzer"),
		integer("zylinder"),
		integer("gaenge"),
		integer("tankvolumen"),
		integer("leergewicht"),
		integer("zul_gesamtgewicht"),
		integer("nutzlast"),
		integer("co2_emission"),
		integer("elektrische_reichweite"),
		decimal("verbrauch_innerorts"),
		decimal("verbrauch_ausserorts"),
		decimal("verbrauch_kombiniert"),
		decimal("stromverbrauch"),
		decimal("batteriekapazitaet"),
		text("kraftstoffart", 50),
		text("getriebeart", 50),
		text("antriebsart", 50),
		text("schadstoffklasse", 20),
		text("umweltplakette", 20),
		text("energieeffizienzklasse", 5),
		text("kategorie", 50),
		text("karosserieform", 50),
		text("zustand", 50),

		// Dates
		date("ez"),
		date("hu"),
		date("lieferdatum"),
		date("produktionsdatum"),
		date("verfuegbar_ab"),
		date("highlight_ab"),
		date("highlight_bis"),
		integer("lieferfrist"),

		// Pricing
		decimal("preis"),
		decimal("haendlerpreis"),
		decimal("netto_preis"),
		decimal("mwst_satz"),
		text("waehrung", 3),
		flag("mwst"),
		flag("preis_verhandelbar"),

		// Finance and leasing
		flag("finanzierung"),
		decimal("finanzierung_rate"),
		integer("finanzierung_laufzeit"),
		decimal("finanzierung_anzahlung"),
		decimal("finanzierung_schlussrate"),
		decimal("finanzierung_effektivzins"),
		text("finanzierung_bank", 100),
		flag("leasing"),
		decimal("leasing_rate"),
		integer("leasing_laufzeit"),
		integer("garantie_monate"),

		// Appearance
		text("farbe", 32),
		text("farbe_hersteller", 100),
		text("innenfarbe", 32),
		text("innenausstattung", 50),

		// Listing
		text("beschreibung", 0),
		text("bemerkung", 0),
		text("ausstattung_text", 0),
		text("bilder", 0),
		text("video_url", 255),
		text("standort", 100),
		text("plz", 10),
		text("ort", 100),
		text("land", 2),
		text("ansprechpartner", 100),
		text("telefon", 50),
		text("email", 255),
	}

	// Vehicle history and condition
	fields = append(fields, flags(
		"oldtimer", "beschaedigtes_fahrzeug", "unfallfrei", "taxi",
		"behindertengerecht", "jahreswagen", "neufahrzeug", "vorfuehrfahrzeug",
		"unsere_empfehlung", "garantie", "scheckheftgepflegt", "nichtraucher",
		"metallic",
	)...)

	// Equipment
	fields = append(fields, flags(
		"klima", "klimaautomatik", "abs", "esp", "allrad", "anhaengerkupplung",
		"alufelgen", "navigationssystem", "bluetooth", "freisprecheinrichtung",
		"tempomat", "adaptiver_tempomat", "einparkhilfe_vorne", "einparkhilfe_hinten",
		"rueckfahrkamera", "kamera_360", "sitzheizung", "standheizung",
		"lederausstattung", "panoramadach", "schiebedach", "xenon",
		"led_scheinwerfer", "tagfahrlicht", "elektrische_fensterheber",
		"elektrische_sitze", "zentralverriegelung", "wegfahrsperre", "servolenkung",
		"bordcomputer", "head_up_display", "spurhalteassistent", "totwinkel_assistent",
		"notbremsassistent", "verkehrszeichenerkennung", "muedigkeitswarner",
		"start_stopp", "isofix", "dachreling", "sportpaket", "sportsitze",
		"lenkradheizung", "multifunktionslenkrad", "apple_carplay", "android_auto",
		"dab_radio", "soundsystem", "induktionsladen", "keyless",
		"elektrische_heckklappe", "partikelfilter", "winterreifen", "allwetterreifen",
		"ersatzrad", "regensensor", "lichtsensor", "ambientebeleuchtung",
		"massagesitze", "sitzbelueftung", "luftfederung", "sportfahrwerk",
		"e10_geeignet", "plugin_hybrid", "schnellladefunktion",
	)...)

	return fields
}

func registerCars() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:          CarsKey,
			Group:        "Dealer",
			Label:        "Fahrzeuge",
			IdentityKeys: []string{"vin", "interne_nummer"},
		},
		FieldSpecs: carsFields(),
		Stamped:    true,
	})
}
