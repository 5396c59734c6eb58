package labels

// Entry maps a long patho_niv1 label to its display form.
type Entry struct {
	Long  string
	Short string
}

// Mapping is the fixed long → short table, applied in this order. Identity
// entries mark labels that are already short.
var Mapping = []Entry{
	{"Affections de longue durée (dont 31 et 32) pour d'autres causes", "Affections longue durée (autres)"},
	{"Cancers", "Cancers"},
	{"Diabète", "Diabète"},
	{"Hospitalisation pour Covid-19", "Covid-19"},
	{"Hospitalisations hors pathologies repérées (avec ou sans pathologies, traitements ou maternité)", "Hospitalisations diverses"},
	{"Insuffisance rénale chronique terminale", "Insuffisance rénale"},
	{"Maladies cardioneurovasculaires", "Maladies cardiovasculaires"},
	{"Maladies du foie ou du pancréas (hors mucoviscidose)", "Maladies hépatiques/pancréatiques"},
	{"Maladies inflammatoires ou rares ou infection VIH", "Maladies inflammatoires/VIH"},
	{"Maladies neurologiques", "Maladies neurologiques"},
	{"Maladies psychiatriques", "Maladies psychiatriques"},
	{"Maladies respiratoires chroniques (hors mucoviscidose)", "Maladies respiratoires"},
	{"Maternité (avec ou sans pathologies)", "Maternité"},
	{"Pas de pathologie repérée, traitement, maternité, hospitalisation ou traitement antalgique ou anti-inflammatoire", "Aucune pathologie repérée"},
	{"Traitements antalgiques ou anti-inflammatoires (hors pathologies, traitements, maternité ou hospitalisations)", "Traitements antalgiques/anti-inflammatoires"},
	{"Traitements du risque vasculaire (hors pathologies)", "Traitements risque vasculaire"},
	{"Traitements psychotropes (hors pathologies)", "Traitements psychotropes"},
}

// Short returns the display label for l, or l itself when unmapped.
func Short(l string) string {
	for _, e := range Mapping {
		if e.Long == l {
			return e.Short
		}
	}
	return l
}
