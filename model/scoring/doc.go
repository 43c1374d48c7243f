// Package scoring implements the quality gate wrapping step execution:
// evaluate, compare against a threshold, retry with backoff until the score
// passes or retries run out, then aggregate the history into one ensemble
// score.
package scoring
