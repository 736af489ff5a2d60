// Package pointcloud holds the plain point types shared by scene loading and
// export, the ASCII PCD codec, and a 2D grid index for neighbourhood queries
// over large outdoor scenes.
package pointcloud
