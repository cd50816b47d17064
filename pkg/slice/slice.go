// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package slice complements the standard [slices] package with the generic
projections the services use to turn rows into ids, hashes and lookups.
*/
package slice

// Map projects every element of input through transform. A nil input stays nil.
func Map[T any, U any](input []T, transform func(T) U) []U {
	if input == nil {
		return nil
	}

	result := make([]U, len(input))
	for i, v := range input {
		result[i] = transform(v)
	}

	return result
}

// Associate builds a map from the key/value pair returned for each element.
// Later elements win on duplicate keys.
func Associate[T any, K comparable, V any](input []T, pair func(T) (K, V)) map[K]V {
	result := make(map[K]V, len(input))
	for _, v := range input {
		key, value := pair(v)
		result[key] = value
	}
	return result
}
