package engine

import (
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

const (
	tileExtent     = 512
	mercatorExtent = 20037508.342789244
	maxZoom        = 22
)

// worldPixel projects p onto the pixel plane at zoom z.
func worldPixel(p orb.Point, z float64) orb.Point {
	m := project.WGS84.ToMercator(p)
	scale := tileExtent * math.Pow(2, z)
	return orb.Point{
		(m[0] + mercatorExtent) / (2 * mercatorExtent) * scale,
		(mercatorExtent - m[1]) / (2 * mercatorExtent) * scale,
	}
}

// clusterIndex groups the points of a clustered source per integer zoom.
// Clusters are greedy: each unassigned point collects every unassigned point
// within radius pixels, in input order.
type clusterIndex struct {
	points  []*geojson.Feature
	radius  float64
	maxZoom int
	byZoom  map[int][]clusterNode
}

type clusterNode struct {
	id      int
	members []int
	center  orb.Point
}

func newClusterIndex(fc *geojson.FeatureCollection, radius, maxZoom int) *clusterIndex {
	idx := &clusterIndex{radius: float64(radius), maxZoom: maxZoom, byZoom: make(map[int][]clusterNode)}
	if fc == nil {
		return idx
	}
	for _, f := range fc.Features {
		if _, ok := f.Geometry.(orb.Point); ok {
			idx.points = append(idx.points, f)
		}
	}
	return idx
}

func (c *clusterIndex) clusters(z int) []clusterNode {
	if z > c.maxZoom {
		return nil
	}
	if nodes, ok := c.byZoom[z]; ok {
		return nodes
	}
	all := make([]int, len(c.points))
	for i := range all {
		all[i] = i
	}
	nodes := c.group(all, z)
	c.byZoom[z] = nodes
	return nodes
}

// group clusters the given member indices at zoom z and returns only the
// groups of two or more points.
func (c *clusterIndex) group(members []int, z int) []clusterNode {
	px := make([]orb.Point, len(members))
	for i, m := range members {
		px[i] = worldPixel(c.points[m].Geometry.(orb.Point), float64(z))
	}

	assigned := make([]bool, len(members))
	var nodes []clusterNode
	for i := range members {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		group := []int{members[i]}
		for j := i + 1; j < len(members); j++ {
			if assigned[j] {
				continue
			}
			if math.Hypot(px[j][0]-px[i][0], px[j][1]-px[i][1]) <= c.radius {
				assigned[j] = true
				group = append(group, members[j])
			}
		}
		if len(group) < 2 {
			continue
		}
		nodes = append(nodes, clusterNode{
			id:      members[i]<<5 | (z + 1),
			members: group,
			center:  c.centroid(group),
		})
	}
	return nodes
}

func (c *clusterIndex) centroid(members []int) orb.Point {
	var sx, sy float64
	for _, m := range members {
		p := c.points[m].Geometry.(orb.Point)
		sx += p[0]
		sy += p[1]
	}
	n := float64(len(members))
	return orb.Point{sx / n, sy / n}
}

// features returns the clusters and unclustered points rendered at zoom z.
func (c *clusterIndex) features(z int) []*geojson.Feature {
	nodes := c.clusters(z)
	clustered := make(map[int]bool)
	out := make([]*geojson.Feature, 0, len(c.points))
	for _, n := range nodes {
		for _, m := range n.members {
			clustered[m] = true
		}
		f := geojson.NewFeature(n.center)
		f.ID = n.id
		f.Properties["cluster"] = true
		f.Properties["cluster_id"] = n.id
		f.Properties["point_count"] = len(n.members)
		f.Properties["point_count_abbreviated"] = abbreviate(len(n.members))
		out = append(out, f)
	}
	for i, p := range c.points {
		if !clustered[i] {
			out = append(out, p)
		}
	}
	return out
}

// expansionZoom is the first zoom above the cluster's own at which its
// members no longer form a single cluster.
func (c *clusterIndex) expansionZoom(clusterID int) (float64, bool) {
	z := clusterID&31 - 1
	if z < 0 {
		return 0, false
	}
	var node *clusterNode
	for _, n := range c.clusters(z) {
		if n.id == clusterID {
			node = &n
			break
		}
	}
	if node == nil {
		return 0, false
	}

	members := node.members
	for next := z + 1; next <= c.maxZoom; next++ {
		groups := c.group(members, next)
		if len(groups) != 1 || len(groups[0].members) != len(members) {
			return float64(next), true
		}
	}
	return float64(c.maxZoom + 1), true
}

func abbreviate(n int) string {
	switch {
	case n >= 10000:
		return strconv.Itoa(int(math.Round(float64(n)/1000))) + "k"
	case n >= 1000:
		return strconv.FormatFloat(math.Round(float64(n)/100)/10, 'f', -1, 64) + "k"
	}
	return strconv.Itoa(n)
}
