// Package labels owns the label taxonomies of the supported source datasets,
// the fixed remapping of each taxonomy into the shared six-class "common"
// space, and the colour palette used when exporting labelled point clouds.
//
// Dataset identity is a closed enumeration: names are parsed once at startup
// and unknown names are rejected there, never at lookup time.
package labels
