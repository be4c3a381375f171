package mocks

//go:generate mockgen -destination=mock_kafka.go -package=mocks fragment-loader/internal/kafka MessageReader,MessageWriter,LoadProducer
//go:generate mockgen -destination=mock_store.go -package=mocks fragment-loader/internal/store StatusStore
