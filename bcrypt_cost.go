//go:build !race

package soptrack

func passwordHashCost() int {
	return 12
}
