package baremap

import "golang.org/x/exp/slices"

// primeCascade is the fixed, sorted table bucket counts are drawn from.
// Using a cascade of small primes rather than a power-of-two table means
// the bucket index distributes diverse hash qualities cheaply through a
// plain modulo, at the cost of never getting to use a bitmask.
var primeCascade = []int{
	11, 17, 29, 47, 79, 127, 211, 337, 547, 887, 1433, 2311, 3739, 6053, 9791, 15859,
}

// smallestPrime is the first (and smallest) entry of the cascade, used as
// the bucket count a freshly cleared-and-shrunk map resets to.
const smallestPrime = 11

// largestBasePrime is the table's own largest prime — once a running
// remainder is reduced below it, no further cascading division is useful.
var largestBasePrime = primeCascade[len(primeCascade)-1]

// pickPrimeProduct chooses a bucket count >= m, built either as a single
// prime from the cascade or as a product of cascade primes.
//
// Algorithm: while m exceeds the table's largest prime, divide m by that
// prime and multiply it into the running product (this is the "cascade" the
// package is named for); once m has been reduced to within the table's
// range, binary-search the table for the smallest prime >= the remainder
// and fold that into the product.
func pickPrimeProduct(m int) int {
	if m < 1 {
		m = 1
	}

	product := 1
	for m > largestBasePrime {
		product *= largestBasePrime
		// Ceil-divide so the product of primes still covers at least m.
		m = (m + largestBasePrime - 1) / largestBasePrime
	}

	idx, found := slices.BinarySearch(primeCascade, m)
	if found {
		return product * primeCascade[idx]
	}
	if idx >= len(primeCascade) {
		// Not reached: the loop leaves m <= largestBasePrime, which the
		// table always covers. Kept as a guard.
		return product * largestBasePrime
	}
	return product * primeCascade[idx]
}
