package handlers

import (
	"net/http"
)

const apiTitle = "wxdata Weather API"

type object = map[string]interface{}

func queryParam(name, description string, schema object) object {
	return object{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      schema,
	}
}

var paginationParams = []object{
	queryParam("limit", "Records per page (1-1000, default: 10)", object{"type": "integer", "default": defaultLimit, "minimum": 1, "maximum": maxLimit}),
	queryParam("offset", "Records to skip (default: 0)", object{"type": "integer", "default": 0, "minimum": 0}),
}

func paginated(item object) object {
	return object{
		"200": object{
			"description": "Successful response",
			"content": object{
				"application/json": object{
					"schema": object{
						"type": "object",
						"properties": object{
							"data":   object{"type": "array", "items": item},
							"total":  object{"type": "integer"},
							"limit":  object{"type": "integer"},
							"offset": object{"type": "integer"},
						},
					},
				},
			},
		},
		"400": object{"description": "Invalid query parameter", "content": errorContent},
		"500": object{"description": "Store failure", "content": errorContent},
	}
}

var errorContent = object{
	"application/json": object{
		"schema": object{
			"type": "object",
			"properties": object{
				"error":   object{"type": "string"},
				"message": object{"type": "string"},
				"code":    object{"type": "integer"},
			},
		},
	},
}

func nullableNumber(description string) object {
	return object{"type": "number", "nullable": true, "description": description}
}

// openAPIDocument describes the query endpoints.
func openAPIDocument() object {
	stationID := queryParam("station_id", "Filter by station id", object{"type": "integer"})
	date := queryParam("date", "Filter by calendar date (MM/DD/YYYY)", object{"type": "string", "example": "01/02/1985"})

	observation := object{
		"type": "object",
		"properties": object{
			"id":              object{"type": "integer"},
			"station_id":      object{"type": "integer"},
			"date":            object{"type": "string", "format": "date"},
			"max_temperature": object{"type": "integer", "description": "Tenths of a degree Celsius, -9999 when missing"},
			"min_temperature": object{"type": "integer", "description": "Tenths of a degree Celsius, -9999 when missing"},
			"precipitation":   object{"type": "integer", "description": "Tenths of a millimeter, -9999 when missing"},
			"scaled": object{
				"type":        "object",
				"description": "Readings in the units of the statistics, null when missing",
				"properties": object{
					"max_temperature": nullableNumber("Degrees Celsius"),
					"min_temperature": nullableNumber("Degrees Celsius"),
					"precipitation":   nullableNumber("Same unit as total_precipitation"),
				},
			},
		},
	}
	statistic := object{
		"type": "object",
		"properties": object{
			"id":                  object{"type": "integer"},
			"station_id":          object{"type": "integer"},
			"year":                object{"type": "integer"},
			"avg_max_temperature": nullableNumber("Degrees Celsius"),
			"avg_min_temperature": nullableNumber("Degrees Celsius"),
			"total_precipitation": nullableNumber("Centimeters"),
		},
	}
	station := object{
		"type": "object",
		"properties": object{
			"id":           object{"type": "integer"},
			"state":        object{"type": "string"},
			"station_code": object{"type": "string"},
		},
	}

	return object{
		"openapi": "3.0.0",
		"info": object{
			"title":       apiTitle,
			"description": "Daily weather observations and per-station yearly statistics",
			"version":     "1.0.0",
		},
		"paths": object{
			"/api/weather": object{
				"get": object{
					"summary":    "List weather observations",
					"parameters": append([]object{stationID, date}, paginationParams...),
					"responses":  paginated(observation),
				},
			},
			"/api/weather/stats": object{
				"get": object{
					"summary": "List yearly statistics",
					"parameters": append([]object{
						stationID,
						queryParam("year", "Filter by year", object{"type": "integer"}),
						queryParam("date", "Filter by the year of a date (MM/DD/YYYY)", object{"type": "string"}),
					}, paginationParams...),
					"responses": paginated(statistic),
				},
			},
			"/api/stations": object{
				"get": object{
					"summary":    "List stations",
					"parameters": paginationParams,
					"responses":  paginated(station),
				},
			},
			"/api/stations/{id}": object{
				"get": object{
					"summary": "Get one station",
					"parameters": []object{{
						"name": "id", "in": "path", "required": true,
						"schema": object{"type": "integer"},
					}},
					"responses": object{
						"200": object{
							"description": "The station",
							"content":     object{"application/json": object{"schema": station}},
						},
						"404": object{"description": "No station with that id"},
					},
				},
			},
			"/health": object{
				"get": object{
					"summary": "Health check",
					"responses": object{
						"200": object{"description": "Store reachable"},
						"503": object{"description": "Store unreachable"},
					},
				},
			},
			"/metrics": object{
				"get": object{
					"summary":   "Prometheus metrics",
					"responses": object{"200": object{"description": "Prometheus text format"}},
				},
			},
		},
	}
}

// OpenAPISpec serves the OpenAPI 3.0 document for the API.
func (h *WeatherHandler) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, openAPIDocument(), http.StatusOK)
}
