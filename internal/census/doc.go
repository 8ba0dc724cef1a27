// Package census cleans the 2020 population census products: the ITER locality
// table, the urban AGEB tables, the population-by-sex selection and the
// attribute tables of the geostatistical framework shapefiles.
package census
