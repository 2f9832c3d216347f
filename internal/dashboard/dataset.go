// Package dashboard loads the processed pipeline outputs the dashboard
// serves into immutable snapshots.
package dashboard

import "github.com/drm-lab/urbanrisk/internal/pipeline"

// Dataset names.
const (
	DatasetUrbanSystem     = "urban_system"
	DatasetSizeClass       = "size_class"
	DatasetUrbanization    = "urbanization"
	DatasetProjections     = "projections"
	DatasetGrowthRates     = "growth_rates"
	DatasetCountryExposure = "country_exposure"
	DatasetBuiltUp         = "builtup_per_capita"
	DatasetCities          = "cities"
	DatasetCityFlood       = "city_flood_exposure"
	DatasetCitySizes       = "city_sizes"
	DatasetCentroids       = "centroids"
)

// Dataset is a processed file the dashboard reads and offers for download.
type Dataset struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	File  string `json:"file"`
}

// Datasets lists every dataset in load order.
var Datasets = []Dataset{
	{DatasetUrbanSystem, "WUP2025 Level 1 population (Cities, Towns, Rural)", pipeline.OutWUPLevel1},
	{DatasetSizeClass, "WUP2025 population by city size class", pipeline.OutWUPSizeClass},
	{DatasetUrbanization, "WUP2025 national definitions, urbanization rate", pipeline.OutWUPNationalPivoted},
	{DatasetProjections, "WUP2025 urban and rural projections", pipeline.OutWUPProjections},
	{DatasetGrowthRates, "WUP2025 urban and rural growth rates", pipeline.OutWUPGrowthRates},
	{DatasetCountryExposure, "Country flood exposure (WorldPop, Fathom)", pipeline.OutCountryExposure},
	{DatasetBuiltUp, "Built-up area per capita by country", pipeline.OutBuiltUpPerCapita},
	{DatasetCities, "City population and built-up area", pipeline.OutExposureFormat1},
	{DatasetCityFlood, "City flood exposure", pipeline.OutExposureFormat2},
	{DatasetCitySizes, "Africapolis city populations", pipeline.OutCitiesIndividual},
	{DatasetCentroids, "Africapolis city centroids", pipeline.OutCentroids},
}

// LookupDataset finds a dataset by name.
func LookupDataset(name string) (Dataset, bool) {
	for _, d := range Datasets {
		if d.Name == name {
			return d, true
		}
	}
	return Dataset{}, false
}
