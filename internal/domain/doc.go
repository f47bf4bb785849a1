// Package domain models the gridded hydrology data behind the daily flood
// feature table.
//
// # Data Sources
//
// Precipitation comes from a daily raster series such as CHIRPS Daily
// (UCSB-CHG/CHIRPS/DAILY): one frame per calendar day, stamped at 00:00 UTC,
// with a single "precipitation" band in millimetres per day.
//
// Land-surface state comes from a sub-daily model series such as GLDAS-2.1
// Noah 3-hourly (NASA/GLDAS/V021/NOAH/G025/T3H). Each frame carries:
//
//	surface_runoff         storm surface runoff accumulated over the step (GLDAS "Qs_acc")
//	subsurface_runoff      baseflow-groundwater runoff over the step (GLDAS "Qsb_acc")
//	soil_moisture_top10cm  instantaneous 0-10 cm soil moisture (GLDAS "SoilMoi0_10cm_inst")
//
// The land-surface series is sparse: whole days can be missing and that is
// expected, not a fault. Original GLDAS band names can be mapped onto these
// names with [RenameBands].
//
// # Grids and Coordinates
//
// A [Grid] is a regular lattice anchored at its lower-left corner (MinX, MinY),
// with square cells of CellSize and values stored row-major starting at the
// bottom row. NaN marks a masked (no data) cell. Grids and region boundaries
// share one projected coordinate system, so scales and cell sizes are in the
// same linear unit (metres for the default configuration).
//
// # Windows
//
// Every temporal selection is a half-open [Window] [start, end). The daily
// window for day d is [d, d+1d); the 3-day cumulative window is [d-2d, d+1d).
// Days are calendar days in UTC.
//
// # Reductions
//
// Temporal reductions combine frames pixel by pixel ([CompositeBand]): runoff
// accumulations are summed across a day, instantaneous soil moisture is
// averaged. Masked pixels are skipped; a pixel masked in every frame stays
// masked.
//
// Spatial reductions turn a band into a scalar over the region ([Reduction]).
// Each requested (band, reducer) pair yields one value keyed "band_reducer",
// e.g. "precipitation_mean" or "precipitation_stdDev". Standard deviation is
// the population form.
//
// # Missing Land-Surface Days
//
// When the land-surface window for a day is empty the three land-surface
// features are all set to [Sentinel] (-9999). The three fields are never
// mixed: either all come from real data or all are the sentinel.
package domain
