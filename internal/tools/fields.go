// ABOUTME: Fixed allow-list of place detail fields and its validation helper.
// ABOUTME: Field-gated lookups reject unknown fields before any upstream call.

package tools

import "strings"

// availableFields is the fixed set of fields a describe_place call may
// request. It mirrors the place provider's field mask vocabulary.
var availableFields = map[string]struct{}{
	// Basic tier
	"accessibilityOptions":    {},
	"addressComponents":       {},
	"adrFormatAddress":        {},
	"businessStatus":          {},
	"containingPlaces":        {},
	"displayName":             {},
	"formattedAddress":        {},
	"googleMapsLinks":         {},
	"googleMapsUri":           {},
	"iconBackgroundColor":     {},
	"iconMaskBaseUri":         {},
	"location":                {},
	"photos":                  {},
	"plusCode":                {},
	"primaryType":             {},
	"primaryTypeDisplayName":  {},
	"pureServiceAreaBusiness": {},
	"shortFormattedAddress":   {},
	"subDestinations":         {},
	"types":                   {},
	"utcOffsetMinutes":        {},
	"viewport":                {},
	// Advanced tier
	"currentOpeningHours":          {},
	"currentSecondaryOpeningHours": {},
	"internationalPhoneNumber":     {},
	"nationalPhoneNumber":          {},
	"priceLevel":                   {},
	"priceRange":                   {},
	"rating":                       {},
	"regularOpeningHours":          {},
	"regularSecondaryOpeningHours": {},
	"userRatingCount":              {},
	"websiteUri":                   {},
	// Preferred tier
	"allowsDogs":            {},
	"curbsidePickup":        {},
	"delivery":              {},
	"dineIn":                {},
	"editorialSummary":      {},
	"evChargeOptions":       {},
	"fuelOptions":           {},
	"goodForChildren":       {},
	"goodForGroups":         {},
	"goodForWatchingSports": {},
	"liveMusic":             {},
	"menuForChildren":       {},
	"parkingOptions":        {},
	"paymentOptions":        {},
	"outdoorSeating":        {},
	"reservable":            {},
	"restroom":              {},
	"reviews":               {},
	"servesBeer":            {},
	"servesBreakfast":       {},
	"servesBrunch":          {},
	"servesCocktails":       {},
	"servesCoffee":          {},
	"servesDessert":         {},
	"servesDinner":          {},
	"servesLunch":           {},
	"servesVegetarianFood":  {},
	"servesWine":            {},
	"takeout":               {},
}

// DefaultSearchFields are requested on every text search; they cover what
// the core needs to store and associate a place with a chat.
var DefaultSearchFields = []string{
	"displayName",
	"id",
	"formattedAddress",
	"websiteUri",
	"location",
	"photos",
	"editorialSummary",
}

// invalidFields returns the entries not present in the allow-list,
// preserving input order.
func invalidFields(fields []string) []string {
	var invalid []string
	for _, f := range fields {
		if _, ok := availableFields[f]; !ok {
			invalid = append(invalid, f)
		}
	}
	return invalid
}

// formatInvalidFields renders the structured validation message, e.g.
// "Invalid fields: ['bogus_field']".
func formatInvalidFields(invalid []string) string {
	quoted := make([]string, len(invalid))
	for i, f := range invalid {
		quoted[i] = "'" + f + "'"
	}
	return "Invalid fields: [" + strings.Join(quoted, ", ") + "]"
}
