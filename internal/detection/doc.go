// Package detection proposes rectangular regions that are likely to contain a
// license plate.
//
// Two strategies satisfy the same Proposer contract and are chosen when the
// pipeline is built:
//
//   - ContourProposer: classical edge geometry. The image is reduced to an edge
//     mask, external contours are extracted, and each contour is kept when its
//     enclosed area and bounding-box aspect ratio fall inside the configured
//     ranges.
//   - A trained object detector (see the dnn subpackage) whose boxes are
//     filtered by class name and score, then suppressed with greedy IoU NMS.
//
// # Contour Extraction
//
// Contours are 8-connected components of edge pixels. Only external components
// are reported: those touching the image border or adjacent to background that
// is reachable from the border. Components nested inside another component's
// hole, such as the characters inside a plate frame, are skipped.
//
// The enclosed area of a contour counts its own pixels plus every pixel it
// surrounds, so a closed ring reports the area of the filled shape.
//
// # Ordering
//
// Candidates are returned in discovery order (row-major scan for contours,
// model output order for detectors). Callers must not depend on it.
package detection
