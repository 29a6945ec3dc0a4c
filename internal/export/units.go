package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/paulmach/orb/encoding/wkt"
	"github.com/rotisserie/eris"

	"github.com/sells-group/access-cli/internal/model"
)

// WriteUnitsCSV writes units as id, lon, lat and WKT geometry, the layout
// dataset.LoadUnits reads with its default column names.
func WriteUnitsCSV(w io.Writer, units []model.SpatialUnit, delim rune) error {
	cw := csv.NewWriter(w)
	if delim != 0 {
		cw.Comma = delim
	}
	if err := cw.Write([]string{IDColumn, "lon", "lat", "geometry"}); err != nil {
		return eris.Wrap(err, "export: write units header")
	}
	for _, u := range units {
		geom := ""
		if u.Geometry != nil {
			geom = wkt.MarshalString(u.Geometry)
		}
		row := []string{
			u.ID,
			strconv.FormatFloat(u.Centroid[0], 'f', -1, 64),
			strconv.FormatFloat(u.Centroid[1], 'f', -1, 64),
			geom,
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "export: write unit %s", u.ID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush units")
}
