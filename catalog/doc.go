// Package catalog persists dataset descriptors and fragment records.
//
// A catalog is the metadata layer of a store: datasets are created with a
// Descriptor, committed fragments are saved as fragment.Record values, and
// Lookup returns the records intersecting a query region so a dataset can
// seed its candidate pool without loading every record of a large dataset.
//
// Two implementations are provided:
//
//   - Manifest keeps one versioned manifest per dataset in a
//     blobstore.BlobStore, switched through a CURRENT blob. OpenS3 places it
//     in S3; with a DynamoDB commit table several processes may write it.
//   - Bolt keeps descriptors and records in a bbolt database file.
package catalog
