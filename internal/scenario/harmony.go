package scenario

import (
	"net/http"
	"net/url"

	"github.com/skorper/harmony/internal/client"
)

// DefaultShapefile is the polygon uploaded by the shapefile subsetter scenario.
const DefaultShapefile = "../docs/notebook_helpers/test_in-polygon.shp.zip"

// Defaults returns the built-in workload against the UAT coverages API.
func Defaults() []Scenario {
	return []Scenario{
		{
			Name:   "Harmony GDAL: Bbox, Variable, and reformat",
			Weight: 2,
			Tags:   []string{"harmony-gdal", "sync", "variable", "bbox", "reproject", "png"},
			Build: coverageGet(
				"C1233800302-EEDTEST", "blue_var", url.Values{
					"subset":    {"lat(20:60)", "lon(-140:-50)"},
					"granuleId": {"G1233800343-EEDTEST"},
					"outputCrs": {"EPSG:4326"},
					"format":    {"image/png"},
				}),
		},
		{
			Name:   "SWOT Reprojection: Europe scale extent",
			Weight: 2,
			Tags:   []string{"swot-repr", "sync", "reproject", "netcdf4"},
			Build: coverageGet(
				"C1233860183-EEDTEST", "all", url.Values{
					"granuleId":     {"G1233860486-EEDTEST"},
					"outputCrs":     {"+proj=lcc +lat_1=43 +lat_2=62 +lat_0=30 +lon_0=10 +x_0=0 +y_0=0 +ellps=intl +units=m no_defs"},
					"interpolation": {"near"},
					"scaleExtent":   {"-7000000,1000000,8000000,8000000"},
				}),
		},
		{
			Name:   "PODAAC Shapefile Subsetter",
			Weight: 2,
			Tags:   []string{"podaac-ps3", "shapefile", "sync", "temporal", "netcdf4"},
			Build:  shapefilePost,
		},
		{
			Name:   "PODAAC L2SS mean sea surface",
			Weight: 5,
			Tags:   []string{"podaac-l2ss", "bbox", "sync", "netcdf4", "agu", "variable"},
			Build: coverageGet(
				"C1234208438-POCLOUD", "mean_sea_surface", url.Values{
					"maxResults": {"1"},
					"subset":     {"lon(-160:160)", "lat(-80:80)"},
				}),
		},
		{
			Name:   "ASF GDAL",
			Weight: 2,
			Tags:   []string{"asf-gdal", "sync", "bbox", "variable", "temporal", "hierarchical-variable", "netcdf4"},
			Build: coverageGet(
				"C1225776654-ASF", "science/grids/data/amplitude", url.Values{
					"granuleId": {"G1235282694-ASF"},
					"subset": {
						"lon(37:40)",
						"lat(23:24)",
						`time("2014-10-30T15:00:00Z":"2014-10-30T15:59:00Z")`,
					},
				}),
		},
		{
			Name:   "Variable subsetter",
			Weight: 2,
			Tags:   []string{"var-subsetter", "sync", "variable", "hierarchical-variable", "netcdf4"},
			Build: coverageGet(
				"C1234714698-EEDTEST", "/gt1l/land_segments/canopy/h_canopy", url.Values{
					"granuleid": {"G1238479514-EEDTEST"},
				}),
		},
		{
			Name:   "PODAAC L2SS Async",
			Weight: 5,
			Tags:   []string{"podaac-l2ss", "bbox", "async", "netcdf4"},
			Async:  true,
			Build: coverageGet(
				"C1234208436-POCLOUD", "all", url.Values{
					"maxResults": {"2"},
					"subset":     {"lon(-160:160)", "lat(-80:80)"},
				}),
		},
		{
			Name:   "PODAAC L2SS Async Spatial and Temporal",
			Weight: 1,
			Tags:   []string{"podaac-l2ss", "bbox", "async", "netcdf4", "temporal", "agu"},
			Async:  true,
			Build: coverageGet(
				"C1234724471-POCLOUD", "all", url.Values{
					"subset": {
						"lat(81.7:83)",
						"lon(-62.8:-56.4)",
						`time("2019-06-22T00:00:00Z":"2019-06-22T23:59:59Z")`,
					},
				}),
		},
		{
			Name:   "NetCDF to Zarr single granule",
			Weight: 1,
			Tags:   []string{"netcdf-to-zarr", "async", "zarr", "agu"},
			Async:  true,
			Build: coverageGet(
				"C1234082763-POCLOUD", "all", url.Values{
					"maxResults": {"1"},
				}),
		},
		{
			Name:   "NetCDF to Zarr temporal subset",
			Weight: 1,
			Tags:   []string{"netcdf-to-zarr", "async", "zarr", "agu", "temporal"},
			Async:  true,
			Build: coverageGet(
				"C1234410736-POCLOUD", "all", url.Values{
					"subset": {`time("2020-01-01T00:00:00.000Z":"2020-01-02T00:00:00.000Z")`},
				}),
		},
	}
}

func shapefilePost(env Env) (client.Request, error) {
	path := env.ShapefilePath
	if path == "" {
		path = DefaultShapefile
	}
	return client.Request{
		Method: http.MethodPost,
		Path:   CoveragePath("C1234530533-EEDTEST", "all"),
		Form: url.Values{
			"subset": {`time("2009-01-09T00:00:00Z":"2009-01-09T01:00:00Z")`},
		},
		Files: []client.FormFile{{
			Field:       "shapefile",
			Filename:    "test_in-polygon.shp.zip",
			ContentType: "application/shapefile+zip",
			Path:        path,
		}},
	}, nil
}
