package main

import (
	"strconv"

	"parcelmap/internal/render"
)

// Level is the amount of detail a report carries. Each level adds to the one
// below it.
type Level int

const (
	LevelSituation Level = iota + 1 // parcel outlines and legend
	LevelBuildings                  // + built intersections
	LevelSurfaces                   // + surface table
	LevelDossier                    // + Lambert-93 frame metadata and totals
)

var levelNames = map[Level]string{
	LevelSituation: "situation",
	LevelBuildings: "buildings",
	LevelSurfaces:  "surfaces",
	LevelDossier:   "dossier",
}

func (l Level) String() string {
	if n, ok := levelNames[l]; ok {
		return n
	}
	return "level(" + strconv.Itoa(int(l)) + ")"
}

// needsBuildings reports whether the level uses the built-area computation.
func (l Level) needsBuildings() bool { return l >= LevelBuildings }

// renderOptions maps a level onto what the PDF shows.
func (l Level) renderOptions() render.Options {
	return render.Options{
		Buildings: l >= LevelBuildings,
		Table:     l >= LevelSurfaces,
		Totals:    l >= LevelDossier,
		Metadata:  l >= LevelDossier,
	}
}
